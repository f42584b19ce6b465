// Package codec prepares image payloads for transmission: orientation
// normalization, aspect-ratio adjustment, byte-ceiling compression, the
// uniqueness perturbation, and the local content hash.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/rwcarlsen/goexif/exif"
	xdraw "golang.org/x/image/draw"

	"github.com/dsokolov-dev/phantompost/internal/common"
)

// ErrDecode wraps image decode failures; the orchestrator records them on
// the item and moves on.
var ErrDecode = errors.New("image decode failed")

// Accepted aspect ratios (width/height) and the tolerance band around them.
var targetRatios = []float64{1.0, 0.8, 1.91}

const ratioTolerance = 0.01

const (
	qualityFloor = 0.70
	qualityCeil  = 0.95
)

// Options are the codec tuning knobs. The perturbation bounds are empirical
// camouflage values, configurable on purpose.
type Options struct {
	MaxDimension    int // downsample bound for the compression fallback
	FallbackQuality int // JPEG quality of the second (final) encode pass
	PerturbPixels   int // how many pixels Uniqueify touches
	PerturbMaxDelta int // max intensity delta before opacity scaling
	PerturbOpacity  int // composited opacity, 0..255
	BaseQuality     int // re-encode quality Uniqueify jitters around
	QualityJitter   int // ± bound on the Uniqueify quality
}

// Codec applies the preparation pipeline. Zero-value options are filled with
// defaults by New.
type Codec struct {
	opts Options
}

func New(opts Options) *Codec {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = 1080
	}
	if opts.FallbackQuality <= 0 {
		opts.FallbackQuality = 70
	}
	if opts.PerturbPixels <= 0 {
		opts.PerturbPixels = 24
	}
	if opts.PerturbMaxDelta <= 0 {
		opts.PerturbMaxDelta = 3
	}
	if opts.PerturbOpacity <= 0 {
		opts.PerturbOpacity = 12
	}
	if opts.BaseQuality <= 0 {
		opts.BaseQuality = 88
	}
	if opts.QualityJitter <= 0 {
		opts.QualityJitter = 3
	}
	return &Codec{opts: opts}
}

// ContentHash returns a stable non-cryptographic digest of data. Local
// duplicate detection only; never sent anywhere.
func (c *Codec) ContentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// NormalizeOrientation re-renders the image so the stored pixel data is
// upright. Input without an EXIF orientation (or already upright) passes
// through byte-identical.
func (c *Codec) NormalizeOrientation(data []byte) ([]byte, error) {
	orientation := readOrientation(data)
	if orientation <= 1 {
		return data, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err)
	}

	upright := applyOrientation(img, orientation)
	return encodeJPEG(upright, 95)
}

// AdjustAspectRatio classifies width/height against the accepted target
// ratios. Inside a tolerance band the bytes pass through unchanged;
// otherwise the image is center-cropped to the nearest target.
func (c *Codec) AdjustAspectRatio(data []byte) ([]byte, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err)
	}

	ratio := float64(cfg.Width) / float64(cfg.Height)
	nearest := targetRatios[0]
	for _, t := range targetRatios {
		if math.Abs(ratio-t) < math.Abs(ratio-nearest) {
			nearest = t
		}
	}
	if math.Abs(ratio-nearest) <= ratioTolerance {
		return data, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err)
	}

	return encodeJPEG(centerCrop(img, nearest), 95)
}

// AdaptiveCompress brings data under target bytes in at most two encode
// passes. Already-compliant input is returned unchanged. The first pass
// derives quality analytically from the size ratio; if the floor quality is
// still too large, the image is downsampled once and encoded at the fixed
// fallback quality. Never iterative re-compression.
func (c *Codec) AdaptiveCompress(data []byte, target int) ([]byte, error) {
	if target <= 0 || len(data) <= target {
		return data, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err)
	}

	q := math.Sqrt(float64(target) / float64(len(data)))
	if q < qualityFloor {
		q = qualityFloor
	}
	if q > qualityCeil {
		q = qualityCeil
	}

	first, err := encodeJPEG(img, int(q*100))
	if err != nil {
		return nil, err
	}
	if len(first) <= target {
		return first, nil
	}

	return encodeJPEG(downsample(img, c.opts.MaxDimension), c.opts.FallbackQuality)
}

// Uniqueify perturbs a bounded number of pixels at low composited opacity
// and jitters the re-encode quality, so visually identical inputs transmit
// with different bytes and different content hashes.
func (c *Codec) Uniqueify(data []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err)
	}

	rgba := toRGBA(img)
	b := rgba.Bounds()

	for i := 0; i < c.opts.PerturbPixels; i++ {
		x := b.Min.X + common.RandomIntBetween(0, b.Dx())
		y := b.Min.Y + common.RandomIntBetween(0, b.Dy())
		offset := rgba.PixOffset(x, y)

		for ch := 0; ch < 3; ch++ {
			delta := common.RandomIntBetween(-c.opts.PerturbMaxDelta, c.opts.PerturbMaxDelta+1)
			// composite the delta at low opacity
			scaled := delta * c.opts.PerturbOpacity / 255
			if scaled == 0 && delta != 0 {
				scaled = sign(delta)
			}
			rgba.Pix[offset+ch] = clampByte(int(rgba.Pix[offset+ch]) + scaled)
		}
	}

	quality := c.opts.BaseQuality +
		common.RandomIntBetween(-c.opts.QualityJitter, c.opts.QualityJitter+1)
	return encodeJPEG(rgba, quality)
}

// Prepare runs the full pre-transmission pipeline: orientation, aspect
// ratio, byte ceiling.
func (c *Codec) Prepare(data []byte, targetBytes int) ([]byte, error) {
	out, err := c.NormalizeOrientation(data)
	if err != nil {
		return nil, err
	}
	out, err = c.AdjustAspectRatio(out)
	if err != nil {
		return nil, err
	}
	return c.AdaptiveCompress(out, targetBytes)
}

// readOrientation returns the EXIF orientation value, or 1 when absent or
// unreadable.
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), img, b.Min, xdraw.Src)
	return rgba
}

// applyOrientation maps EXIF orientations 2..8 onto the upright rendering.
func applyOrientation(img image.Image, orientation int) image.Image {
	src := toRGBA(img)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	switch orientation {
	case 3, 2, 4:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	default: // 5..8 swap axes
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := src.RGBAAt(x, y)
			switch orientation {
			case 2: // mirrored horizontally
				dst.SetRGBA(w-1-x, y, px)
			case 3: // rotated 180
				dst.SetRGBA(w-1-x, h-1-y, px)
			case 4: // mirrored vertically
				dst.SetRGBA(x, h-1-y, px)
			case 5: // mirrored + rotated 270 CW
				dst.SetRGBA(y, x, px)
			case 6: // rotated 90 CW
				dst.SetRGBA(h-1-y, x, px)
			case 7: // mirrored + rotated 90 CW
				dst.SetRGBA(h-1-y, w-1-x, px)
			case 8: // rotated 270 CW
				dst.SetRGBA(y, w-1-x, px)
			}
		}
	}
	return dst
}

func centerCrop(img image.Image, targetRatio float64) image.Image {
	src := toRGBA(img)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	cropW, cropH := w, h
	if float64(w)/float64(h) > targetRatio {
		cropW = int(math.Round(float64(h) * targetRatio))
	} else {
		cropH = int(math.Round(float64(w) / targetRatio))
	}

	x0 := (w - cropW) / 2
	y0 := (h - cropH) / 2

	dst := image.NewRGBA(image.Rect(0, 0, cropW, cropH))
	xdraw.Draw(dst, dst.Bounds(), src, image.Pt(b.Min.X+x0, b.Min.Y+y0), xdraw.Src)
	return dst
}

func downsample(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	dw := int(math.Round(float64(w) * scale))
	dh := int(math.Round(float64(h) * scale))

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func sign(n int) int {
	if n < 0 {
		return -1
	}
	return 1
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// ruploadParams is the upload-parameters JSON travelling in the
// X-Instagram-Rupload-Params entity header.
type ruploadParams struct {
	UploadID         string `json:"upload_id"`
	MediaType        int    `json:"media_type"`
	RetryContext     string `json:"retry_context"`
	ImageCompression string `json:"image_compression"`
	XsharingUserIDs  string `json:"xsharing_user_ids"`
}

// UploadPhoto pushes raw JPEG bytes to the binary upload endpoint. The bytes
// only become a visible item after ConfigureMedia finalizes them. Always a
// write-lane call.
func (c *Client) UploadPhoto(ctx context.Context, uploadID string, data []byte) error {
	entityName := fmt.Sprintf("%s_0_%d", uploadID, len(data))

	params := ruploadParams{
		UploadID:         uploadID,
		MediaType:        1,
		RetryContext:     `{"num_step_auto_retry":0,"num_reupload":0,"num_step_manual_retry":0}`,
		ImageCompression: `{"lib_name":"moz","lib_version":"3.1.m","quality":"80"}`,
		XsharingUserIDs:  "[]",
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}

	_, _, err = c.do(ctx, LaneWrite, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.opts.BaseURL+"/rupload_igphoto/"+entityName, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}

		req.Header = c.signer.Headers(c.monitor.CurrentState().Transport)
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("X-Entity-Name", entityName)
		req.Header.Set("X-Entity-Type", "image/jpeg")
		req.Header.Set("X-Entity-Length", strconv.Itoa(len(data)))
		req.Header.Set("X-Instagram-Rupload-Params", string(paramsJSON))
		req.Header.Set("Offset", "0")
		req.ContentLength = int64(len(data))
		return req, nil
	})
	return err
}

// configureResponse is the subset of the finalize response we read back.
type configureResponse struct {
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
	Status string `json:"status"`
}

// ConfigureMedia finalizes previously uploaded bytes into a visible item and
// returns the remote media id.
func (c *Client) ConfigureMedia(ctx context.Context, uploadID, caption string) (string, error) {
	payload := map[string]any{
		"upload_id":          uploadID,
		"caption":            caption,
		"source_type":        "4",
		"camera_entry_point": "feed",
	}

	body, err := c.Execute(ctx, http.MethodPost, "/media/configure/", payload, LaneWrite)
	if err != nil {
		return "", err
	}

	var parsed configureResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode configure response: %w", err)
	}
	return parsed.Media.ID, nil
}

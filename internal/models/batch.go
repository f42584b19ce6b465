package models

// Batch groups the items of one logical content drop.
//
// AllowRepeat opts the batch into posting visually identical content more
// than once; the codec then has to make the transmitted bytes differ.
type Batch struct {
	ID          string
	Caption     string
	AllowRepeat bool
}

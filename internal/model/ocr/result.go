package ocr

import "time"

// Result holds text extracted from an image, kept for later download.
type Result struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// WithID returns the result stamped with id.
func (r Result) WithID(id string) Result {
	r.ID = id
	return r
}

// Clone returns r; strings are immutable.
func (r Result) Clone() Result {
	return r
}

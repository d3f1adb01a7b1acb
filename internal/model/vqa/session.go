package vqa

import "time"

// Session binds an uploaded image to an identifier so follow-up questions can
// reuse it without another upload. ImageBytes is never modified after creation.
type Session struct {
	ID          string    `json:"id"`
	ImageBytes  []byte    `json:"imageBytes"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Clone returns a deep copy so callers cannot reach the stored bytes.
func (s Session) Clone() Session {
	s.ImageBytes = append([]byte(nil), s.ImageBytes...)
	return s
}

// WithID returns the session stamped with id.
func (s Session) WithID(id string) Session {
	s.ID = id
	return s
}

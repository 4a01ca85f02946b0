package store

import "time"

// Subscription contains the fields of an active subject subscription saved to DB. Consumer identifies the websocket
// client the stream is delivered to, so one subject may appear many times.
type Subscription struct {
	ID         []byte    `json:"id"`
	SubjectID  string    `json:"subject_id"`
	Consumer   string    `json:"consumer"`
	RemoteAddr string    `json:"remote_addr"`
	CreatedAt  time.Time `json:"created_at"`
}

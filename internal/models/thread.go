package models

import "time"

// Thread is a named conversation. MessageCount and LastMessage are derived
// from the thread's messages when it is read back from the store.
type Thread struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	LastMessage  string    `json:"lastMessage,omitempty"`
}

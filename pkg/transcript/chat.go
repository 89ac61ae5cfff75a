// Package transcript reads a LiveChat chat payload and renders it as a CRM note body.
package transcript

import (
	"time"
)

// Speaker roles allowed in a message
const (
	Agent      = "agent"
	Supervisor = "supervisor"
	Visitor    = "visitor"
)

// Message is one line of a chat
type Message struct {
	UserType   string  `json:"user_type"`
	AuthorName string  `json:"author_name"`
	Text       string  `json:"text"`
	Timestamp  float64 `json:"timestamp"`
}

// Time returns the message timestamp, sent in Unix milliseconds
func (m Message) Time() time.Time {
	return time.UnixMilli(int64(m.Timestamp))
}

// ChatData is a finished chat
type ChatData struct {
	ID               string    `json:"id"`
	StartedTimestamp float64   `json:"started_timestamp"`
	EndedTimestamp   float64   `json:"ended_timestamp"`
	Messages         []Message `json:"messages"`
}

// VisitorData is the end user of a chat
type VisitorData struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Email           string              `json:"email"`
	CustomVariables []map[string]string `json:"custom_variables,omitempty"`
}

// Input is the webhook body
type Input struct {
	Chat    ChatData    `json:"chat"`
	Visitor VisitorData `json:"visitor"`
}

package amqp

import (
	"encoding/json"
	"time"
)

// SessionLoggedMessage carries the full session payload to the sync worker.
// The flat session file has no row ids to look a record back up by, so the
// message is self-contained.
type SessionLoggedMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Hours     float64   `json:"hours"`
	Project   string    `json:"project"`
	Task      string    `json:"task"`
	LoggedAt  time.Time `json:"loggedAt"`
}

// NewSessionLoggedMessage builds a message for a freshly logged session.
func NewSessionLoggedMessage(timestamp time.Time, hours float64, project, task string) *SessionLoggedMessage {
	return &SessionLoggedMessage{
		Timestamp: timestamp,
		Hours:     hours,
		Project:   project,
		Task:      task,
		LoggedAt:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SessionLoggedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SessionLoggedMessageFromJSON creates a message from JSON bytes
func SessionLoggedMessageFromJSON(data []byte) (*SessionLoggedMessage, error) {
	var msg SessionLoggedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

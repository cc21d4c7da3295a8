package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"costbook/internal/ports"
)

// ProjectChangedMessage tells consumers that a project was written to. It
// carries no entity data; consumers reload the project.
type ProjectChangedMessage struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entityId,omitempty"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

var errMissingProjectID = errors.New("message has no projectId")

// NewProjectChangedMessage builds a message for one change.
func NewProjectChangedMessage(change ports.Change) *ProjectChangedMessage {
	ts := change.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &ProjectChangedMessage{
		ID:        uuid.NewString(),
		ProjectID: change.ProjectID,
		Entity:    string(change.Entity),
		EntityID:  change.EntityID,
		Operation: string(change.Operation),
		Timestamp: ts.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ProjectChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ProjectChangedMessageFromJSON decodes and checks a message body.
func ProjectChangedMessageFromJSON(data []byte) (*ProjectChangedMessage, error) {
	var msg ProjectChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ProjectID == "" {
		return nil, errMissingProjectID
	}
	return &msg, nil
}

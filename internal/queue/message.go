package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageVersion is the current analyze-job payload version.
const MessageVersion = 1

// Message asks a worker to analyze one stored résumé.
type Message struct {
	ResumeID   string `json:"resumeId"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Version > MessageVersion {
		return Message{}, fmt.Errorf("unsupported message version %d", msg.Version)
	}
	msg.ResumeID = strings.TrimSpace(msg.ResumeID)
	return msg, nil
}

package sse

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type discriminates the event payloads a stream can carry. The set is fixed;
// consumers switch on it to decode the data field.
type Type string

// Recognised event types, in rough pipeline order.
const (
	TypeStatus           Type = "status"
	TypeValidationResult Type = "validation_result"
	TypeKMResult         Type = "km_result"
	TypeThinking         Type = "thinking"
	TypeAnswerChunk      Type = "answer_chunk"
	TypeFormattedAnswer  Type = "formatted_answer"
	TypeMetadata         Type = "metadata"
	TypeTTSAudio         Type = "tts_audio"
	TypeComplete         Type = "complete"
	TypeError            Type = "error"
)

// Event is a single message on the stream. Every event carries its type and an
// emission timestamp; exactly one of Message (human readable) or Data
// (structured) is normally set.
type Event struct {
	Type      Type   `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Status builds a status event with a human-readable progress message.
func Status(message string) Event {
	return Event{Type: TypeStatus, Timestamp: now(), Message: message}
}

// Error builds an error event. Emitting one does not close the stream; closure
// is governed by the completion registry.
func Error(message string) Event {
	return Event{Type: TypeError, Timestamp: now(), Message: message}
}

// Data builds an event of type t carrying a structured payload.
func Data(t Type, data any) Event {
	return Event{Type: t, Timestamp: now(), Data: data}
}

// complete builds the terminal event. Only the sink emits it.
func complete(message string) Event {
	return Event{Type: TypeComplete, Timestamp: now(), Message: message}
}

// MarshalSSE renders the event as one server-sent-events message:
// a "data:" line holding the JSON payload, terminated by a blank line.
func (e Event) MarshalSSE() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("sse: marshal %s event: %w", e.Type, err)
	}
	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	return buf, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

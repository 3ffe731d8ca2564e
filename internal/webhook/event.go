// ABOUTME: Webhook event decoding into a closed set of event types
// ABOUTME: Extracts function-call name and arguments from function-call payloads

package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventType is the kind of an inbound agent event.
type EventType string

const (
	EventCallStart    EventType = "call-start"
	EventCallEnd      EventType = "call-end"
	EventSpeechStart  EventType = "speech-start"
	EventSpeechEnd    EventType = "speech-end"
	EventMessage      EventType = "message"
	EventFunctionCall EventType = "function-call"
	EventError        EventType = "error"
	EventUnknown      EventType = "unknown"
)

var knownEventTypes = map[EventType]bool{
	EventCallStart:    true,
	EventCallEnd:      true,
	EventSpeechStart:  true,
	EventSpeechEnd:    true,
	EventMessage:      true,
	EventFunctionCall: true,
	EventError:        true,
}

// ParseEventType maps a wire type string onto EventType. Unrecognized values
// become EventUnknown.
func ParseEventType(s string) EventType {
	t := EventType(s)
	if knownEventTypes[t] {
		return t
	}
	return EventUnknown
}

var (
	ErrMalformedEvent = errors.New("malformed webhook event")
	ErrMissingType    = errors.New("webhook event has no type")
	ErrMalformedCall  = errors.New("malformed function call")
)

// Event is a decoded webhook event.
type Event struct {
	Type EventType
	// RawType is the type string as received, kept for logging unknown types.
	RawType string
	Data    json.RawMessage
}

type wireEvent struct {
	Type json.RawMessage `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEvent decodes a {type, data} envelope.
func ParseEvent(body []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if len(w.Type) == 0 || bytes.Equal(w.Type, []byte("null")) {
		return nil, ErrMissingType
	}
	var rawType string
	if err := json.Unmarshal(w.Type, &rawType); err != nil {
		return nil, fmt.Errorf("%w: type is not a string", ErrMalformedEvent)
	}
	if rawType == "" {
		return nil, ErrMissingType
	}
	return &Event{Type: ParseEventType(rawType), RawType: rawType, Data: w.Data}, nil
}

// FunctionCall is the payload of a function-call event.
type FunctionCall struct {
	Name      string
	Arguments map[string]any
}

type wireFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// FunctionCall extracts the function name and arguments from a function-call
// event. Arguments may be a JSON object or a string holding a JSON object;
// absent or null arguments yield an empty map.
func (e *Event) FunctionCall() (*FunctionCall, error) {
	if e.Type != EventFunctionCall {
		return nil, fmt.Errorf("%w: event type is %s", ErrMalformedCall, e.Type)
	}
	var w wireFunctionCall
	if err := json.Unmarshal(e.Data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	if w.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrMalformedCall)
	}
	args, err := decodeArguments(w.Arguments)
	if err != nil {
		return nil, err
	}
	return &FunctionCall{Name: w.Name, Arguments: args}, nil
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("%w: arguments: %v", ErrMalformedCall, err)
		}
		if encoded == "" {
			return map[string]any{}, nil
		}
		raw = json.RawMessage(encoded)
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: arguments must be an object: %v", ErrMalformedCall, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

package models

import (
	"encoding/json"
	"fmt"
)

// Decode unmarshals a raw bus payload into the Go type registered for
// stream, returning it as an interface{} (one of the concrete *Event
// types above). Unknown streams are a caller bug, not a data problem, so
// they return an error rather than silently accepting anything.
func Decode(stream string, payload []byte) (any, error) {
	switch stream {
	case StreamNewsRaw:
		var v NewsEvent
		return decodeInto(&v, payload)
	case StreamNewsEntity:
		var v EntityEvent
		return decodeInto(&v, payload)
	case StreamSignalRaw, StreamSignalTradeable, StreamSignalUniverse:
		var v SignalEvent
		return decodeInto(&v, payload)
	case StreamOrderIntent, StreamOrderApproved:
		var v OrderIntent
		return decodeInto(&v, payload)
	case StreamOrderRejected:
		var v RiskDecision
		return decodeInto(&v, payload)
	case StreamExecutionReport:
		var v ExecutionReport
		return decodeInto(&v, payload)
	case StreamPnLSnapshot:
		var v PnLSnapshot
		return decodeInto(&v, payload)
	default:
		return nil, fmt.Errorf("models: no type registered for stream %q", stream)
	}
}

func decodeInto[T any](v *T, payload []byte) (any, error) {
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, fmt.Errorf("models: decode failed: %w", err)
	}
	return *v, nil
}

// Encode marshals any event type to its wire form.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("models: encode failed: %w", err)
	}
	return b, nil
}

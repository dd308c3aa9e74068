package event

import "fmt"

// DecodeError reports JSON text that is malformed or does not match a
// record schema. Field is empty when the text is not a JSON object at all.
type DecodeError struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("decode %s: field %q: %v", e.Kind, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TypeError reports a value that cannot be turned into an Event.
type TypeError struct {
	Value any
	Msg   string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s (got %T)", e.Msg, e.Value)
}

// SerializationError reports an encoder failure for an in-memory record.
type SerializationError struct {
	Kind Kind
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Kind, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

var (
	errMissing = fmt.Errorf("required field missing")
	errNull    = fmt.Errorf("required field is null")
)

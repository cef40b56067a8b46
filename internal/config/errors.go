package config

import "fmt"

const (
	FormatRapified = "rapified"
	FormatText     = "text"
)

// DecodeError reports malformed input. Offset counts bytes for rapified
// input and runes for text input.
type DecodeError struct {
	Format string
	Offset int
	Token  string
	Msg    string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%s config: offset %d", e.Format, e.Offset)
	if e.Token != "" {
		msg += fmt.Sprintf(" at %s", e.Token)
	}
	msg += ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned for frames with no content.
var ErrEmptyMessage = errors.New("empty relay message")

// maxPreview bounds how much of a malformed frame is kept on the error.
const maxPreview = 64

// DecodeError reports a relay frame that could not be decoded.
type DecodeError struct {
	Preview string // Leading bytes of the offending frame
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode relay message %q: %v", e.Preview, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses one relay frame. Numbers are kept as json.Number so large
// amounts and nonces survive unchanged.
func Decode(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Err: ErrEmptyMessage}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &DecodeError{Preview: preview(trimmed), Err: err}
	}
	if dec.More() {
		return nil, &DecodeError{Preview: preview(trimmed), Err: errors.New("trailing data after envelope")}
	}

	return v, nil
}

func preview(data []byte) string {
	if len(data) > maxPreview {
		return string(data[:maxPreview]) + "..."
	}
	return string(data)
}

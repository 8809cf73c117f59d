package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Serial is a request serial held as the JSON token the device sent.
// Replies echo it unchanged, so a string or fractional serial round trips
// without being coerced into an integer.
type Serial string

// SerialFromInt builds a serial for a server initiated message
func SerialFromInt(n int64) Serial {
	return Serial(strconv.FormatInt(n, 10))
}

// Int64 reports the serial as an integer when the device sent one
func (s Serial) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(s), 10, 64)
	return n, err == nil
}

// String returns the serial as sent, without JSON quoting
func (s Serial) String() string {
	if len(s) > 0 && s[0] == '"' {
		var str string
		if err := json.Unmarshal([]byte(s), &str); err == nil {
			return str
		}
	}
	return string(s)
}

// MarshalJSON writes the serial token back verbatim. A missing serial is
// written as 0.
func (s Serial) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("0"), nil
	}
	return []byte(s), nil
}

// UnmarshalJSON accepts a JSON number or string. null leaves the serial empty.
func (s *Serial) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch v.(type) {
	case json.Number, string:
		*s = Serial(bytes.Clone(data))
		return nil
	default:
		return fmt.Errorf("serial must be a number or string, got %s", data)
	}
}

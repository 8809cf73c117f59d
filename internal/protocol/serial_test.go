package protocol

import (
	"encoding/json"
	"testing"
)

func TestSerial_EchoesDeviceForm(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "integer", payload: `{"cmd":32,"serial":2819}`, want: `2819`},
		{name: "string", payload: `{"cmd":32,"serial":"a-17"}`, want: `"a-17"`},
		{name: "fraction", payload: `{"cmd":32,"serial":1.5}`, want: `1.5`},
		{name: "exponent", payload: `{"cmd":32,"serial":1e3}`, want: `1e3`},
		{name: "large", payload: `{"cmd":32,"serial":123456789012345678901234567890}`, want: `123456789012345678901234567890`},
		{name: "missing", payload: `{"cmd":32}`, want: `0`},
		{name: "null", payload: `{"cmd":32,"serial":null}`, want: `0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeCommand([]byte(tt.payload))
			if err != nil {
				t.Fatalf("DecodeCommand() error = %v", err)
			}

			body, err := json.Marshal(NewHeartbeatAck(HeartbeatAckParams{Serial: msg.Serial, UID: "abc123"}))
			if err != nil {
				t.Fatalf("json.Marshal() error = %v", err)
			}
			var reply map[string]json.RawMessage
			if err := json.Unmarshal(body, &reply); err != nil {
				t.Fatalf("json.Unmarshal() error = %v", err)
			}
			if got := string(reply["serial"]); got != tt.want {
				t.Errorf("echoed serial = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSerial_RejectsNonScalar(t *testing.T) {
	for _, payload := range []string{`{"cmd":32,"serial":true}`, `{"cmd":32,"serial":[1]}`, `{"cmd":32,"serial":{"n":1}}`} {
		if _, err := DecodeCommand([]byte(payload)); err == nil {
			t.Errorf("DecodeCommand(%s) error = nil, want error", payload)
		}
	}
}

func TestSerial_Accessors(t *testing.T) {
	if n, ok := Serial("2819").Int64(); !ok || n != 2819 {
		t.Errorf("Int64() = %d, %v, want 2819, true", n, ok)
	}
	if _, ok := Serial(`"a-17"`).Int64(); ok {
		t.Error("Int64() on string serial ok = true, want false")
	}
	if _, ok := Serial("1.5").Int64(); ok {
		t.Error("Int64() on fractional serial ok = true, want false")
	}
	if got := Serial(`"a-17"`).String(); got != "a-17" {
		t.Errorf("String() = %q, want a-17", got)
	}
	if got := SerialFromInt(42); got != "42" {
		t.Errorf("SerialFromInt(42) = %q, want 42", got)
	}
}

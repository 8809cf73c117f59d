package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

// toMap marshals a payload and decodes it back into a generic map so the
// wire field names are checked, not the Go field names.
func toMap(t *testing.T, payload any) map[string]any {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	return m
}

func TestPayloadConstructors(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	tests := []struct {
		name    string
		payload any
		want    map[string]any
	}{
		{
			name:    "hello ack",
			payload: NewHelloAck(HelloAckParams{Serial: "5", Key: "abcdefghijklmnop"}),
			want:    map[string]any{"cmd": 0.0, "status": 0.0, "serial": 5.0, "key": "abcdefghijklmnop"},
		},
		{
			name:    "handshake ack",
			payload: NewHandshakeAck(HandshakeAckParams{Serial: "6"}),
			want:    map[string]any{"cmd": 6.0, "status": 0.0, "serial": 6.0},
		},
		{
			name:    "heartbeat ack",
			payload: NewHeartbeatAck(HeartbeatAckParams{Serial: "7", UID: "abc123", Now: now}),
			want:    map[string]any{"cmd": 32.0, "status": 0.0, "serial": 7.0, "uid": "abc123", "utc": 1700000000123.0},
		},
		{
			name:    "state confirm",
			payload: NewStateConfirm(StateConfirmParams{Serial: "8", UID: "abc123", State: 75, Now: now}),
			want: map[string]any{
				"uid": "abc123", "cmd": 42.0, "statusType": 0.0, "alarmType": 1.0, "serial": 8.0,
				"value1": 75.0, "value2": 0.0, "value3": 0.0, "value4": 0.0,
				"deviceId": 0.0, "updateTimeSec": 1700000000123.0, "status": 0.0,
			},
		},
		{
			name:    "generic ack",
			payload: NewGenericAck(GenericAckParams{Cmd: 999, Serial: "9", UID: "abc123"}),
			want:    map[string]any{"uid": "abc123", "cmd": 999.0, "serial": 9.0, "status": 0.0},
		},
		{
			name: "order",
			payload: NewOrder(OrderParams{
				UID:             "abc123",
				Order:           "open",
				Serial:          "12345678",
				ClientSessionID: "c0ffee",
				DeviceID:        "d00d",
				Values:          OrderValues{Value1: 1, Value2: 2, Value3: 3, Value4: 4},
			}),
			want: map[string]any{
				"uid": "abc123", "delayTime": 0.0, "cmd": 15.0, "order": "open",
				"userName": OrderUserName, "ver": OrderVersion,
				"value1": 1.0, "value2": 2.0, "value3": 3.0, "value4": 4.0,
				"serial": 12345678.0, "deviceId": "d00d", "clientSessionId": "c0ffee",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toMap(t, tt.payload)
			if len(got) != len(tt.want) {
				t.Errorf("field count = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for k, want := range tt.want {
				if got[k] != want {
					t.Errorf("%s = %v, want %v", k, got[k], want)
				}
			}
		})
	}
}

func TestNewOrder_ZeroValuesDefault(t *testing.T) {
	got := toMap(t, NewOrder(OrderParams{UID: "abc123", Order: "stop"}))
	for _, k := range []string{"value1", "value2", "value3", "value4"} {
		if got[k] != 0.0 {
			t.Errorf("%s = %v, want 0", k, got[k])
		}
	}
}

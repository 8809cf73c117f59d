package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type names an event variant. The string values are also the "type" field
// of the JSON envelope streamed to API clients.
type Type string

const (
	TypeDeviceConnected             Type = "deviceConnected"
	TypeStateChanged                Type = "stateChanged"
	TypeHeartbeat                   Type = "heartbeat"
	TypeDeviceDisconnected          Type = "deviceDisconnected"
	TypeDeviceDisconnectedWithError Type = "deviceDisconnectedWithError"
)

// Event is one of the five concrete event structs below
type Event interface {
	Type() Type
}

// DeviceConnected is emitted once a device completes the handshake
type DeviceConnected struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// StateChanged is emitted for every device state report
type StateChanged struct {
	UID   string `json:"uid"`
	State int    `json:"state"`
	Name  string `json:"name"`
}

// Heartbeat is emitted for every device heartbeat
type Heartbeat struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// DeviceDisconnected is emitted when a device closes its connection.
// UID and Name are empty if it never completed the handshake.
type DeviceDisconnected struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// DeviceDisconnectedWithError is emitted when a connection fails. It carries
// the last session snapshot so consumers can mark the device unreachable.
type DeviceDisconnectedWithError struct {
	ConnectionID string `json:"connectionId"`
	UID          string `json:"uid"`
	Name         string `json:"name"`
	ModelID      string `json:"modelId"`
	State        int    `json:"state"`
	Error        string `json:"error"`
}

func (DeviceConnected) Type() Type             { return TypeDeviceConnected }
func (StateChanged) Type() Type                { return TypeStateChanged }
func (Heartbeat) Type() Type                   { return TypeHeartbeat }
func (DeviceDisconnected) Type() Type          { return TypeDeviceDisconnected }
func (DeviceDisconnectedWithError) Type() Type { return TypeDeviceDisconnectedWithError }

// Envelope is the wire form of an event
type Envelope struct {
	Type Type            `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// Wrap encodes an event into an envelope stamped with t
func Wrap(e Event, t time.Time) (Envelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s event: %w", e.Type(), err)
	}
	return Envelope{Type: e.Type(), Time: t, Data: data}, nil
}

// Decode returns the concrete event carried by the envelope
func (env Envelope) Decode() (Event, error) {
	var e Event
	switch env.Type {
	case TypeDeviceConnected:
		e = &DeviceConnected{}
	case TypeStateChanged:
		e = &StateChanged{}
	case TypeHeartbeat:
		e = &Heartbeat{}
	case TypeDeviceDisconnected:
		e = &DeviceDisconnected{}
	case TypeDeviceDisconnectedWithError:
		e = &DeviceDisconnectedWithError{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	if err := json.Unmarshal(env.Data, e); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", env.Type, err)
	}

	// Hand back values, matching what the bus publishes
	switch v := e.(type) {
	case *DeviceConnected:
		return *v, nil
	case *StateChanged:
		return *v, nil
	case *Heartbeat:
		return *v, nil
	case *DeviceDisconnected:
		return *v, nil
	case *DeviceDisconnectedWithError:
		return *v, nil
	}
	return e, nil
}

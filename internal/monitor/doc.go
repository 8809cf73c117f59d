// Package monitor renders a live terminal view of a running bridge.
//
// The dashboard lists every known device with its state and online status,
// follows the event stream of the control API, and can send open, close and
// stop orders to the selected device. When stdout is not a terminal,
// RunPlain prints one line per event instead.
package monitor

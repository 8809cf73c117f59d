// Package api exposes the bridge to local consumers over HTTP.
//
// Routes:
//
//	GET  /api/devices               every known device, online or not
//	POST /api/devices/{uid}/orders  {"order":"open","value1":0}; 202, 404 or 400
//	GET  /api/events                websocket stream of event envelopes
//
// Each websocket message is an events.Envelope:
//
//	{"type":"stateChanged","time":"2025-11-25T10:30:00Z","data":{"uid":"abc123","state":75,"name":"unknown"}}
//
// The API has no authentication and binds to loopback by default. Client
// wraps the routes for orvibo-ctl.
package api

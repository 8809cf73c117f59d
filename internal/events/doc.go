// Package events defines the typed device events the bridge emits and a
// small fan-out bus to deliver them.
//
// Each variant is its own struct implementing Event, so consumers switch on
// the concrete type instead of parsing loosely shaped maps:
//
//	ch, unsubscribe := bus.Subscribe(0)
//	defer unsubscribe()
//	for e := range ch {
//	    switch ev := e.(type) {
//	    case events.StateChanged:
//	        fmt.Println(ev.UID, ev.State)
//	    }
//	}
//
// Envelope is the JSON form used by the control API's event stream.
package events

// Package protocol implements the Orvibo plug binary protocol.
//
// This package handles parsing, validation, encryption and construction of the
// frames exchanged between the bridge and Orvibo B25 style actuators. It has no
// knowledge of sockets or sessions; the server package drives it.
//
// # Frame Format
//
// Every frame, in both directions, has a fixed 42 byte header followed by an
// encrypted payload. All integers are big-endian:
//
//	[0-1]    magic          0x68 0x64 ("hd")
//	[2-3]    length         Total frame length including the header
//	[4-5]    type           "pk" (pre-shared key) or "dk" (session key)
//	[6-9]    checksum       CRC-32 (IEEE) of the encrypted payload
//	[10-41]  correlation    32 byte opaque id chosen by the sender
//	[42+]    payload        AES-128-ECB encrypted JSON, PKCS#7 padded
//
// # Keys
//
// The very first frame of a connection (hello) is a "pk" frame encrypted with
// the pre-shared key baked into the device firmware. The server answers with a
// freshly generated 16 character session key inside the hello reply; every
// later frame on that connection is a "dk" frame under the session key.
//
// # Commands
//
// The decrypted payload is a flat JSON object with at least "cmd" and
// "serial". Devices append garbage after the closing brace, so DecodeCommand
// truncates the buffer at the closing brace before parsing.
//
// Command codes are reused across directions (42 is both the device state
// report and the server's confirmation, 15 is both the device's state ack and
// the server's set order). Command values therefore carry a Direction tag.
//
// # Usage Example - Decoding
//
//	raw, err := protocol.ReadFrame(conn)
//	if err != nil {
//	    return err
//	}
//	frame, err := protocol.ParseFrame(raw)
//	if err != nil {
//	    return err
//	}
//	if !frame.Valid() {
//	    return protocol.ErrChecksumMismatch
//	}
//	msg, err := protocol.Open(frame, sessionKey)
//
// # Usage Example - Construction
//
//	payload := protocol.NewHeartbeatAck(protocol.HeartbeatAckParams{
//	    Serial: msg.Serial,
//	    UID:    msg.UID,
//	    Now:    time.Now(),
//	})
//	out, err := protocol.Seal(protocol.FrameTypeDK, correlationID, payload, sessionKey)
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package protocol

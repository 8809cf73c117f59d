package protocol

import "errors"

// Sentinel errors returned by the codec. Callers match them with errors.Is;
// the returned errors are wrapped with detail.
var (
	// ErrMalformedFrame is returned when a frame is shorter than the header,
	// carries the wrong magic or declares an impossible length.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrChecksumMismatch is returned when the CRC-32 in the header does not
	// match the payload.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrDecrypt covers wrong key length, unaligned ciphertext and bad padding.
	ErrDecrypt = errors.New("decrypt failed")

	// ErrEncrypt is returned when a payload cannot be encrypted, which only
	// happens with a key of the wrong length.
	ErrEncrypt = errors.New("encrypt failed")

	// ErrMalformedPayload is returned when the decrypted payload is not a
	// JSON object.
	ErrMalformedPayload = errors.New("malformed payload")
)

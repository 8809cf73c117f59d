package protocol

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"fmt"
	"math/big"
)

// KeySize is the AES-128 key length used by both the pre-shared and session keys
const KeySize = 16

const (
	alphanumeric = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	hexDigits    = "0123456789abcdef"
	decimal      = "0123456789"
)

// Encrypt applies PKCS#7 padding and encrypts plaintext with AES-128-ECB.
//
// ECB is what the device firmware speaks; there is no IV and identical blocks
// produce identical ciphertext.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil || len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrEncrypt, KeySize, len(key))
	}

	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	buf := make([]byte, len(plaintext)+padLen)
	copy(buf, plaintext)
	copy(buf[len(plaintext):], bytes.Repeat([]byte{byte(padLen)}, padLen))

	for i := 0; i < len(buf); i += aes.BlockSize {
		block.Encrypt(buf[i:i+aes.BlockSize], buf[i:i+aes.BlockSize])
	}
	return buf, nil
}

// Decrypt decrypts an AES-128-ECB payload and strips the PKCS#7 padding
func Decrypt(payload, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrDecrypt, KeySize, len(key))
	}
	if len(payload) == 0 || len(payload)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d", ErrDecrypt, len(payload), aes.BlockSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	out := make([]byte, len(payload))
	for i := 0; i < len(payload); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], payload[i:i+aes.BlockSize])
	}

	padLen := int(out[len(out)-1])
	if padLen == 0 || padLen > aes.BlockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, b := range out[len(out)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}

	return out[:len(out)-padLen], nil
}

// GenerateSessionKey returns a new 16 character alphanumeric session key.
// Firmware expects printable characters, not raw random bytes.
func GenerateSessionKey() (string, error) {
	return randomString(KeySize, alphanumeric)
}

// RandomHex returns n random lowercase hex characters
func RandomHex(n int) (string, error) {
	return randomString(n, hexDigits)
}

// RandomSerial returns a random 8 digit serial for server initiated orders
func RandomSerial() (Serial, error) {
	first, err := randomString(1, decimal[1:])
	if err != nil {
		return "", err
	}
	rest, err := randomString(7, decimal)
	if err != nil {
		return "", err
	}
	return Serial(first + rest), nil
}

func randomString(n int, alphabet string) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

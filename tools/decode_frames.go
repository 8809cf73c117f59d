//go:build ignore

package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/muurk/orvibo-bridge/internal/protocol"
)

// framePattern matches a hex encoded frame starting with the "hd" magic
var framePattern = regexp.MustCompile(`6864[0-9a-fA-F]{80,}`)

// Statistics tracks decoding results
type Statistics struct {
	TotalLines   int
	Frames       int
	DecodeOK     int
	BadChecksum  int
	NoKey        int
	DecodeFailed int
	Commands     map[string]int
	SessionKeys  int
}

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: decode_frames <pre-shared-key> <capture-file>")
		fmt.Println("Example: go run tools/decode_frames.go khggd54865SNJHGF bridge-debug.log")
		fmt.Println()
		fmt.Println("Reads hex frames (e.g. the hex_dump field of debug logs) and prints the")
		fmt.Println("decrypted payloads. Session keys are learned from hello replies, so dk")
		fmt.Println("frames can be decoded once the hello of their connection was seen.")
		os.Exit(1)
	}

	psk := []byte(os.Args[1])
	if len(psk) != protocol.KeySize {
		fmt.Printf("Error: pre-shared key must be %d bytes, got %d\n", protocol.KeySize, len(psk))
		os.Exit(1)
	}

	file, err := os.Open(os.Args[2])
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	stats := Statistics{Commands: make(map[string]int)}
	// session keys by the correlation id of the hello reply that issued them
	keys := make(map[string][]byte)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		stats.TotalLines++
		match := framePattern.FindString(scanner.Text())
		if match == "" {
			continue
		}
		if len(match)%2 == 1 {
			match = match[:len(match)-1]
		}
		raw, err := hex.DecodeString(match)
		if err != nil {
			continue
		}
		stats.Frames++
		decodeFrame(stats.TotalLines, raw, psk, keys, &stats)
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}

	printStatistics(stats)
}

func decodeFrame(line int, raw []byte, psk []byte, keys map[string][]byte, stats *Statistics) {
	frame, err := protocol.ParseFrame(raw)
	if err != nil {
		stats.DecodeFailed++
		fmt.Printf("line %d: %v\n", line, err)
		return
	}
	if !frame.Valid() {
		stats.BadChecksum++
		fmt.Printf("line %d: %s frame with bad checksum\n", line, frame.Type)
		return
	}

	candidates := [][]byte{psk}
	if frame.Type == protocol.FrameTypeDK {
		// Devices use their own correlation id, so fall back to every
		// learned key
		candidates = candidates[:0]
		if key, ok := keys[string(frame.CorrelationID)]; ok {
			candidates = append(candidates, key)
		}
		for _, key := range keys {
			candidates = append(candidates, key)
		}
		if len(candidates) == 0 {
			stats.NoKey++
			fmt.Printf("line %d: dk frame %s, no session key learned yet\n", line, frame.CorrelationID)
			return
		}
	}

	var msg *protocol.Message
	for _, key := range candidates {
		msg, err = protocol.Open(frame, key)
		if err == nil {
			break
		}
	}
	if err != nil {
		stats.DecodeFailed++
		fmt.Printf("line %d: %v\n", line, err)
		return
	}

	// A hello reply hands out the session key for its correlation id
	if frame.Type == protocol.FrameTypePK {
		var ack protocol.HelloAck
		if json.Unmarshal(msg.Raw, &ack) == nil && len(ack.Key) == protocol.KeySize {
			keys[string(frame.CorrelationID)] = []byte(ack.Key)
			stats.SessionKeys++
		}
	}

	stats.DecodeOK++
	name := msg.Command().Name
	stats.Commands[name]++
	fmt.Printf("line %d: %s cmd=%d (%s) serial=%s %s\n", line, frame.Type, msg.Cmd, name, msg.Serial, msg.Raw)
}

func printStatistics(stats Statistics) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Lines read:      %d\n", stats.TotalLines)
	fmt.Printf("Frames found:    %d\n", stats.Frames)
	fmt.Printf("Decoded:         %d\n", stats.DecodeOK)
	fmt.Printf("Bad checksum:    %d\n", stats.BadChecksum)
	fmt.Printf("No session key:  %d\n", stats.NoKey)
	fmt.Printf("Failed:          %d\n", stats.DecodeFailed)
	fmt.Printf("Session keys:    %d\n", stats.SessionKeys)

	if len(stats.Commands) == 0 {
		return
	}
	names := make([]string, 0, len(stats.Commands))
	for name := range stats.Commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nCommands:")
	for _, name := range names {
		fmt.Printf("  %-14s %d\n", name, stats.Commands[name])
	}
}

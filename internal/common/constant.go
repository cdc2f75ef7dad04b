// Package common contains shared constants and sentinel errors used across
// the relay and the participant client.
package common

const (
	// CommandMarker prefixes every line the client sends as a command.
	CommandMarker = "/"

	// MaxFrameSize bounds a single framed message on the stream transports.
	MaxFrameSize = 1 << 20
)

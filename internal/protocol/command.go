package protocol

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/securechat/internal/common"
)

// Command names understood by the relay.
const (
	CmdWhisper = "/whisper"
	CmdList    = "/list"
)

// WhisperUsage is returned when a whisper lacks a target or a body.
const WhisperUsage = "Usage: /whisper <user> <message>"

// ParsedCommand is a command line split into name, target and body.
type ParsedCommand struct {
	Name   string
	Target string
	Body   string
}

// ParseCommand splits text on whitespace into at most three parts: the
// command name, the target identity and the remaining body. The body is kept
// verbatim, including embedded and trailing whitespace.
func ParseCommand(text string) (ParsedCommand, error) {
	text = strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(text, common.CommandMarker) {
		return ParsedCommand{}, fmt.Errorf("%w: %q", common.ErrUnknownCommand, text)
	}

	var pc ParsedCommand
	pc.Name, text = cutField(text)
	pc.Target, text = cutField(text)
	pc.Body = text
	return pc, nil
}

// cutField returns the first whitespace-delimited token of s and the
// remainder with leading whitespace removed.
func cutField(s string) (string, string) {
	s = strings.TrimLeft(s, " \t\r\n")
	i := strings.IndexAny(s, " \t\r\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t\r\n")
}

// IsCommand reports whether a typed line should be sent as a command.
func IsCommand(line string) bool {
	return strings.HasPrefix(line, common.CommandMarker)
}

// Classify wraps a typed line in the envelope kind it is sent as.
func Classify(line string) Envelope {
	if IsCommand(line) {
		return Command(line)
	}
	return Chat(line)
}

package cli

import (
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

const quitCommand = "/quit"

// compose reads typed lines and sends them until /quit, end of input, a
// failed send or ctx being cancelled. Empty lines are skipped.
func (a *App) compose(ctx context.Context, cl sender) error {
	lines := make(chan string)
	// The reader cannot be interrupted, so this goroutine is left behind when
	// compose returns. It stays blocked in ReadString until one more line
	// arrives or the process exits, then quits once ctx is done.
	go func() {
		defer close(lines)
		for {
			line, err := a.reader.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimRight(line, "\r\n")
			if strings.TrimSpace(line) == "" {
				continue
			}
			if strings.TrimSpace(line) == quitCommand {
				return nil
			}
			if err := cl.Send(line); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}

// sender is the outbound half of chat.Client.
type sender interface {
	Send(line string) error
}

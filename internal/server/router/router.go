// Package router implements broadcast, whisper and presence listing over
// the session registry. Every recipient gets its own sealed copy; sealing
// and sending happen outside the registry lock, on the sender's goroutine.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/securechat/internal/common"
	"github.com/dmitrijs2005/securechat/internal/logging"
	"github.com/dmitrijs2005/securechat/internal/protocol"
	"github.com/dmitrijs2005/securechat/internal/server/session"
)

const (
	msgUserNotFound = "User not found"
	msgTooLong      = "Message too long"
)

// Router routes one sender's messages to the sessions in the registry.
type Router struct {
	registry *session.Registry
	logger   logging.Logger
}

func New(registry *session.Registry, logger logging.Logger) *Router {
	return &Router{registry: registry, logger: logger.With("module", "router")}
}

// ChatLine formats a broadcast chat message as recipients see it.
func ChatLine(sender, text string) string { return sender + ": " + text }

// WhisperLine formats a whisper as its target sees it.
func WhisperLine(sender, text string) string {
	return fmt.Sprintf("[Whisper from %s] %s", sender, text)
}

// JoinNotice and LeaveNotice are announced by the connection handler.
func JoinNotice(identity string) string  { return fmt.Sprintf("User %s has joined the chat", identity) }
func LeaveNotice(identity string) string { return fmt.Sprintf("User %s has left the chat", identity) }

// Chat broadcasts a chat line typed by sender. A line larger than the
// smallest recipient capacity is refused with an error envelope instead of
// failing at every recipient.
func (r *Router) Chat(ctx context.Context, sender *session.Session, text string) int {
	line := ChatLine(sender.Identity, text)
	if limit, ok := r.capacity(sender); ok && len(line) > limit {
		r.reply(ctx, sender, protocol.Error(fmt.Sprintf("%s (max %d bytes)", msgTooLong, limit-len(ChatLine(sender.Identity, "")))))
		return 0
	}
	return r.Broadcast(ctx, sender, line)
}

// Broadcast seals text for every registered session other than sender that
// has a bound key. A failed delivery is logged and skipped; it never stops
// delivery to the remaining recipients. It returns the number of sessions
// that received the message.
func (r *Router) Broadcast(ctx context.Context, sender *session.Session, text string) int {
	delivered := 0
	for _, s := range r.registry.Snapshot() {
		if s.Identity == sender.Identity {
			continue
		}
		if err := s.SendSealed(text); err != nil {
			r.logDeliveryFailure(ctx, sender, s, err)
			continue
		}
		delivered++
	}
	r.logger.Debug(ctx, "broadcast", "sender", sender.Identity, "delivered", delivered)
	return delivered
}

// Announce broadcasts a notice about subject to everybody else. It is the
// same fan-out as Broadcast; subject's own channel may already be closed.
func (r *Router) Announce(ctx context.Context, subject *session.Session, notice string) int {
	return r.Broadcast(ctx, subject, notice)
}

// Whisper delivers body to target only. An unknown target gets the sender
// one error envelope and nobody else anything.
func (r *Router) Whisper(ctx context.Context, sender *session.Session, target, body string) error {
	recipient, ok := r.registry.Lookup(target)
	if !ok {
		r.reply(ctx, sender, protocol.Error(msgUserNotFound))
		return fmt.Errorf("whisper to %q: %w", target, common.ErrUserNotFound)
	}

	if err := recipient.SendSealed(WhisperLine(sender.Identity, body)); err != nil {
		r.logDeliveryFailure(ctx, sender, recipient, err)
		if errors.Is(err, common.ErrPayloadTooLarge) {
			r.reply(ctx, sender, protocol.Error(msgTooLong))
		}
		return err
	}
	return nil
}

// List replies to sender with every registered identity, comma-space
// joined in registry order. The reply is addressed to the sender's own
// client, so it is not sealed.
func (r *Router) List(ctx context.Context, sender *session.Session) {
	ids := r.registry.Identities()
	r.reply(ctx, sender, protocol.Command("Online users: "+strings.Join(ids, ", ")))
}

// Dispatch parses a command envelope's text and routes it.
func (r *Router) Dispatch(ctx context.Context, sender *session.Session, text string) error {
	cmd, err := protocol.ParseCommand(text)
	if err != nil {
		r.reply(ctx, sender, protocol.Error("Invalid command: "+strings.TrimSpace(text)))
		return err
	}

	switch cmd.Name {
	case protocol.CmdWhisper:
		if cmd.Target == "" || cmd.Body == "" {
			r.reply(ctx, sender, protocol.Error(protocol.WhisperUsage))
			return fmt.Errorf("%w: incomplete whisper", common.ErrProtocol)
		}
		return r.Whisper(ctx, sender, cmd.Target, cmd.Body)
	case protocol.CmdList:
		if cmd.Target != "" || cmd.Body != "" {
			r.reply(ctx, sender, protocol.Error("Invalid command: "+strings.TrimSpace(text)))
			return fmt.Errorf("%w: %s takes no arguments", common.ErrUnknownCommand, cmd.Name)
		}
		r.List(ctx, sender)
		return nil
	default:
		r.reply(ctx, sender, protocol.Error("Invalid command: "+cmd.Name))
		return fmt.Errorf("%w: %s", common.ErrUnknownCommand, cmd.Name)
	}
}

// capacity is the smallest payload limit among the sender's would-be
// recipients.
func (r *Router) capacity(sender *session.Session) (int, bool) {
	limit, found := 0, false
	for _, s := range r.registry.Snapshot() {
		if s.Identity == sender.Identity {
			continue
		}
		pub := s.PublicKey()
		if pub == nil {
			continue
		}
		if !found || pub.Capacity() < limit {
			limit, found = pub.Capacity(), true
		}
	}
	return limit, found
}

func (r *Router) reply(ctx context.Context, to *session.Session, e protocol.Envelope) {
	if err := to.Send(e); err != nil {
		r.logger.Warn(ctx, "reply failed", "identity", to.Identity, "kind", e.Kind, "error", err)
	}
}

func (r *Router) logDeliveryFailure(ctx context.Context, sender, recipient *session.Session, err error) {
	r.logger.Warn(ctx, "delivery skipped",
		"sender", sender.Identity,
		"recipient", recipient.Identity,
		"session_id", recipient.ID,
		"error", err,
	)
}

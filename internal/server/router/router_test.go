package router

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/dmitrijs2005/securechat/internal/common"
	"github.com/dmitrijs2005/securechat/internal/cryptox"
	"github.com/dmitrijs2005/securechat/internal/logging"
	"github.com/dmitrijs2005/securechat/internal/protocol"
	"github.com/dmitrijs2005/securechat/internal/server/session"
	"github.com/dmitrijs2005/securechat/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type participant struct {
	session *session.Session
	codec   *protocol.Codec
	key     cryptox.PrivateKey
}

func newParticipant(t *testing.T, r *session.Registry, identity string, scheme cryptox.Scheme, bind bool) *participant {
	t.Helper()
	server, client := transport.Pipe(32)
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	p := &participant{session: session.New(identity, server), codec: protocol.NewCodec(client)}
	if bind {
		bits := 0
		if scheme == cryptox.SchemeRSA {
			bits = 1024
		}
		k, err := cryptox.GenerateKey(scheme, bits)
		require.NoError(t, err)
		pemBytes, err := k.Public().MarshalPEM()
		require.NoError(t, err)
		require.NoError(t, p.session.BindKey(pemBytes))
		p.key = k
	}
	r.Admit(p.session)
	return p
}

// next reads one envelope from the participant's side.
func (p *participant) next(t *testing.T) protocol.Envelope {
	t.Helper()
	env, err := p.codec.ReadEnvelope()
	require.NoError(t, err)
	return env
}

// nextChat reads one chat envelope and opens it.
func (p *participant) nextChat(t *testing.T) string {
	t.Helper()
	env := p.next(t)
	require.Equal(t, protocol.KindChat, env.Kind)
	pt, err := cryptox.OpenString(env.Content, p.key)
	require.NoError(t, err)
	return pt
}

// assertNothing closes the relay side and checks no envelope was pending.
func (p *participant) assertNothing(t *testing.T) {
	t.Helper()
	_ = p.session.Close()
	_, err := p.codec.ReadEnvelope()
	assert.ErrorIs(t, err, io.EOF, "%s received an unexpected envelope", p.session.Identity)
}

func setup(t *testing.T, ids ...string) (*Router, *session.Registry, map[string]*participant) {
	t.Helper()
	reg := session.NewRegistry()
	ps := make(map[string]*participant, len(ids))
	for _, id := range ids {
		ps[id] = newParticipant(t, reg, id, cryptox.SchemeNaCl, true)
	}
	return New(reg, logging.Discard()), reg, ps
}

func TestChat_BroadcastExcludesSender(t *testing.T) {
	r, _, ps := setup(t, "alice", "bob", "carol")
	ctx := context.Background()

	n := r.Chat(ctx, ps["alice"].session, "hello")
	assert.Equal(t, 2, n)

	assert.Equal(t, "alice: hello", ps["bob"].nextChat(t))
	assert.Equal(t, "alice: hello", ps["carol"].nextChat(t))
	ps["alice"].assertNothing(t)
}

func TestBroadcast_EachRecipientGetsOwnCiphertext(t *testing.T) {
	r, _, ps := setup(t, "alice", "bob", "carol")

	r.Broadcast(context.Background(), ps["alice"].session, "same text")
	bobEnv := ps["bob"].next(t)
	carolEnv := ps["carol"].next(t)
	assert.NotEqual(t, bobEnv.Content, carolEnv.Content)

	_, err := cryptox.OpenString(bobEnv.Content, ps["carol"].key)
	assert.ErrorIs(t, err, common.ErrCrypto, "carol must not be able to open bob's copy")
}

func TestBroadcast_PartialFailureIsolation(t *testing.T) {
	reg := session.NewRegistry()
	alice := newParticipant(t, reg, "alice", cryptox.SchemeNaCl, true)
	bob := newParticipant(t, reg, "bob", cryptox.SchemeNaCl, false) // no key bound
	carol := newParticipant(t, reg, "carol", cryptox.SchemeNaCl, true)
	dave := newParticipant(t, reg, "dave", cryptox.SchemeNaCl, true)
	erin := newParticipant(t, reg, "erin", cryptox.SchemeNaCl, true)
	_ = carol.session.Close() // closed channel
	r := New(reg, logging.Discard())

	n := r.Broadcast(context.Background(), alice.session, "still delivered")
	assert.Equal(t, 2, n)
	assert.Equal(t, "still delivered", dave.nextChat(t))
	assert.Equal(t, "still delivered", erin.nextChat(t))
	bob.assertNothing(t)
}

func TestWhisper_Unicast(t *testing.T) {
	r, _, ps := setup(t, "alice", "bob", "carol")
	ctx := context.Background()

	require.NoError(t, r.Dispatch(ctx, ps["alice"].session, "/whisper bob hi there"))

	assert.Equal(t, "[Whisper from alice] hi there", ps["bob"].nextChat(t))
	ps["alice"].assertNothing(t)
	ps["carol"].assertNothing(t)
}

func TestWhisper_UnknownTarget(t *testing.T) {
	r, _, ps := setup(t, "alice", "bob")
	ctx := context.Background()

	err := r.Dispatch(ctx, ps["alice"].session, "/whisper zed hello")
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	env := ps["alice"].next(t)
	assert.Equal(t, protocol.Error("User not found"), env)
	ps["alice"].assertNothing(t)
	ps["bob"].assertNothing(t)
}

func TestWhisper_Usage(t *testing.T) {
	r, _, ps := setup(t, "alice", "bob")
	ctx := context.Background()

	for _, in := range []string{"/whisper", "/whisper bob", "/whisper bob   "} {
		err := r.Dispatch(ctx, ps["alice"].session, in)
		assert.ErrorIs(t, err, common.ErrProtocol, in)
		assert.Equal(t, protocol.Error(protocol.WhisperUsage), ps["alice"].next(t))
	}
	ps["bob"].assertNothing(t)
}

func TestWhisper_ToSelf(t *testing.T) {
	r, _, ps := setup(t, "alice", "bob")

	require.NoError(t, r.Dispatch(context.Background(), ps["alice"].session, "/whisper alice note to self"))
	assert.Equal(t, "[Whisper from alice] note to self", ps["alice"].nextChat(t))
	ps["bob"].assertNothing(t)
}

func TestList_PresenceAccuracy(t *testing.T) {
	r, reg, ps := setup(t, "bob", "alice")
	ctx := context.Background()

	require.NoError(t, r.Dispatch(ctx, ps["alice"].session, "/list"))
	assert.Equal(t, protocol.Command("Online users: alice, bob"), ps["alice"].next(t))

	reg.Evict("bob")
	require.NoError(t, r.Dispatch(ctx, ps["alice"].session, "/list"))
	env := ps["alice"].next(t)
	assert.Equal(t, "Online users: alice", env.Content)

	listed := strings.Split(strings.TrimPrefix(env.Content, "Online users: "), ", ")
	assert.ElementsMatch(t, reg.Identities(), listed)
	ps["bob"].assertNothing(t)
}

func TestList_RejectsArguments(t *testing.T) {
	r, _, ps := setup(t, "alice", "bob")
	ctx := context.Background()

	err := r.Dispatch(ctx, ps["alice"].session, "/list extra words")
	assert.ErrorIs(t, err, common.ErrUnknownCommand)
	assert.Equal(t, protocol.Error("Invalid command: /list extra words"), ps["alice"].next(t))

	require.NoError(t, r.Dispatch(ctx, ps["alice"].session, "/list  "))
	assert.Equal(t, protocol.Command("Online users: alice, bob"), ps["alice"].next(t))
	ps["bob"].assertNothing(t)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	r, _, ps := setup(t, "alice", "bob")

	err := r.Dispatch(context.Background(), ps["alice"].session, "/dance wildly")
	assert.ErrorIs(t, err, common.ErrUnknownCommand)
	assert.Equal(t, protocol.Error("Invalid command: /dance"), ps["alice"].next(t))
	ps["bob"].assertNothing(t)
}

func TestChat_TooLongForRecipientKey(t *testing.T) {
	reg := session.NewRegistry()
	alice := newParticipant(t, reg, "alice", cryptox.SchemeNaCl, true)
	bob := newParticipant(t, reg, "bob", cryptox.SchemeRSA, true) // 1024-bit: 62 byte capacity
	r := New(reg, logging.Discard())
	ctx := context.Background()

	n := r.Chat(ctx, alice.session, strings.Repeat("a", 100))
	assert.Equal(t, 0, n)
	env := alice.next(t)
	assert.Equal(t, protocol.KindError, env.Kind)
	assert.Contains(t, env.Content, "Message too long")

	n = r.Chat(ctx, alice.session, "short")
	assert.Equal(t, 1, n)
	assert.Equal(t, "alice: short", bob.nextChat(t))
}

func TestAnnounce_Notices(t *testing.T) {
	r, reg, ps := setup(t, "alice", "bob")
	ctx := context.Background()

	reg.EvictSession(ps["bob"].session)
	r.Announce(ctx, ps["bob"].session, LeaveNotice("bob"))

	assert.Equal(t, "User bob has left the chat", ps["alice"].nextChat(t))
	ps["bob"].assertNothing(t)
	assert.Equal(t, "User carol has joined the chat", JoinNotice("carol"))
}

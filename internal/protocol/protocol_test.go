package protocol

import (
	"io"
	"testing"

	"github.com/dmitrijs2005/securechat/internal/common"
	"github.com/dmitrijs2005/securechat/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_WireShape(t *testing.T) {
	b, err := MarshalEnvelope(Chat("aGVsbG8="))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"chat","content":"aGVsbG8="}`, string(b))

	_, err = MarshalEnvelope(Envelope{Kind: "message", Content: "x"})
	assert.ErrorIs(t, err, common.ErrProtocol)
}

func TestUnmarshalEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Envelope
		wantErr bool
	}{
		{name: "chat", in: `{"kind":"chat","content":"hello"}`, want: Chat("hello")},
		{name: "command", in: `{"kind":"command","content":"/list"}`, want: Command("/list")},
		{name: "error", in: `{"kind":"error","content":"User not found"}`, want: Error("User not found")},
		{name: "unknown kind", in: `{"kind":"message","content":"x"}`, wantErr: true},
		{name: "missing kind", in: `{"content":"x"}`, wantErr: true},
		{name: "not json", in: `hello`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalEnvelope([]byte(tt.in))
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrProtocol)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnmarshalAuthRequest(t *testing.T) {
	r, err := UnmarshalAuthRequest([]byte(`{"identity":"alice","secretDerivative":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, AuthRequest{Identity: "alice", SecretDerivative: "abc"}, r)

	_, err = UnmarshalAuthRequest([]byte(`{"identity":"alice"}`))
	assert.ErrorIs(t, err, common.ErrProtocol)

	_, err = UnmarshalAuthRequest([]byte(`{`))
	assert.ErrorIs(t, err, common.ErrProtocol)
}

func TestUnmarshalAuthResponse(t *testing.T) {
	r, err := UnmarshalAuthResponse([]byte(`{"status":"success","message":"Authentication successful"}`))
	require.NoError(t, err)
	assert.True(t, r.OK())

	r, err = UnmarshalAuthResponse([]byte(`{"status":"error","message":"Invalid credentials"}`))
	require.NoError(t, err)
	assert.False(t, r.OK())

	_, err = UnmarshalAuthResponse([]byte(`{"status":"maybe"}`))
	assert.ErrorIs(t, err, common.ErrProtocol)
}

func TestCodec_OverPipe(t *testing.T) {
	a, b := transport.Pipe(8)
	ca, cb := NewCodec(a), NewCodec(b)

	require.NoError(t, ca.WriteAuthRequest(AuthRequest{Identity: "bob", SecretDerivative: "d"}))
	req, err := cb.ReadAuthRequest()
	require.NoError(t, err)
	assert.Equal(t, "bob", req.Identity)

	require.NoError(t, cb.WriteAuthResponse(AuthResponse{Status: StatusSuccess, Message: "ok"}))
	resp, err := ca.ReadAuthResponse()
	require.NoError(t, err)
	assert.True(t, resp.OK())

	require.NoError(t, ca.WriteRaw([]byte("-----BEGIN PUBLIC KEY-----")))
	raw, err := cb.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, "-----BEGIN PUBLIC KEY-----", string(raw))

	require.NoError(t, ca.WriteEnvelope(Command("/list")))
	env, err := cb.ReadEnvelope()
	require.NoError(t, err)
	assert.Equal(t, Command("/list"), env)

	require.NoError(t, a.Send([]byte("garbage")))
	_, err = cb.ReadEnvelope()
	assert.ErrorIs(t, err, common.ErrProtocol)

	require.NoError(t, a.Close())
	_, err = cb.ReadEnvelope()
	assert.ErrorIs(t, err, io.EOF)
	assert.NotErrorIs(t, err, common.ErrProtocol)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want ParsedCommand
	}{
		{"/list", ParsedCommand{Name: "/list"}},
		{"/whisper bob hi there", ParsedCommand{Name: "/whisper", Target: "bob", Body: "hi there"}},
		{"/whisper  bob   hi   there  ", ParsedCommand{Name: "/whisper", Target: "bob", Body: "hi   there  "}},
		{"  /whisper bob hi", ParsedCommand{Name: "/whisper", Target: "bob", Body: "hi"}},
		{"/whisper bob   ", ParsedCommand{Name: "/whisper", Target: "bob"}},
		{"/list extra words", ParsedCommand{Name: "/list", Target: "extra", Body: "words"}},
		{"/whisper bob", ParsedCommand{Name: "/whisper", Target: "bob"}},
		{"/whisper\tbob\tline one", ParsedCommand{Name: "/whisper", Target: "bob", Body: "line one"}},
		{"/dance", ParsedCommand{Name: "/dance"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommand(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCommand("hello")
	assert.ErrorIs(t, err, common.ErrUnknownCommand)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Command("/whisper bob hi"), Classify("/whisper bob hi"))
	assert.Equal(t, Chat("hello /list"), Classify("hello /list"))
	assert.Equal(t, Chat(""), Classify(""))
}

package v1

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeInboundMessage(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	in, err := DecodeInbound([]byte(`{"type":"message","data":{"content":"hi"}}`), false)
	req.NoError(err)
	req.Equal(KindMessage, in.Kind)
	req.Equal("hi", in.Message.Content)
	req.Empty(in.Message.Recipient)

	in, err = DecodeInbound([]byte(`{"type":"message","data":{"content":" hi ","recipient":"u2"}}`), true)
	req.NoError(err)
	req.Equal("hi", in.Message.Content)
	req.Equal("u2", in.Message.Recipient)
}

func TestDecodeInboundTyping(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	in, err := DecodeInbound([]byte(`{"type":"typing","data":{"is_typing":true}}`), false)
	req.NoError(err)
	req.Equal(KindTyping, in.Kind)
	req.NotNil(in.Typing.IsTyping)
	req.True(*in.Typing.IsTyping)

	in, err = DecodeInbound([]byte(`{"type":"typing","data":{"is_typing":false,"recipient":"u2"}}`), true)
	req.NoError(err)
	req.False(*in.Typing.IsTyping)
	req.Equal("u2", in.Typing.Recipient)
}

func TestDecodeInboundRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		raw    string
		direct bool
	}{
		{name: "invalid json", raw: `{`},
		{name: "missing type", raw: `{"data":{"content":"hi"}}`},
		{name: "unknown type", raw: `{"type":"presence-joined","data":{}}`},
		{name: "server-only error kind", raw: `{"type":"error","data":{"code":"x","message":"y"}}`},
		{name: "missing data", raw: `{"type":"message"}`},
		{name: "missing content", raw: `{"type":"message","data":{}}`},
		{name: "blank content", raw: `{"type":"message","data":{"content":"   "}}`},
		{name: "content wrong type", raw: `{"type":"message","data":{"content":42}}`},
		{name: "content too long", raw: `{"type":"message","data":{"content":"` + strings.Repeat("a", MaxContentChars+1) + `"}}`},
		{name: "direct message without recipient", raw: `{"type":"message","data":{"content":"hi"}}`, direct: true},
		{name: "missing is_typing", raw: `{"type":"typing","data":{}}`},
		{name: "is_typing wrong type", raw: `{"type":"typing","data":{"is_typing":"yes"}}`},
		{name: "direct typing without recipient", raw: `{"type":"typing","data":{"is_typing":true}}`, direct: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeInbound([]byte(tc.raw), tc.direct)
			require.Error(t, err)

			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
			require.NotEmpty(t, perr.Reason)
		})
	}
}

func TestEventConstructorsRoundTrip(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	ev := NewError("bad_event", "missing field: content")
	req.Equal(KindError, ev.Type)
	req.JSONEq(`{"code":"bad_event","message":"missing field: content"}`, string(ev.Data))

	channel := "general"
	msg := NewMessage(MessageData{
		ID:        "01ABC",
		ChannelID: &channel,
		SenderID:  "u1",
		Content:   "hi",
		Username:  "ada",
	})
	req.Equal(KindMessage, msg.Type)
	req.Contains(string(msg.Data), `"channelId":"general"`)
	req.Contains(string(msg.Data), `"recipientId":null`)
}

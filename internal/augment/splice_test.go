package augment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplicers_PreserveStudentMessage(t *testing.T) {
	const raw = `{"message":"What is 2+2?","thread_id":"t-1","extra":{"a":[1,2]}}`

	for _, mode := range []string{"tagged", "principal", "field"} {
		t.Run(mode, func(t *testing.T) {
			s, err := NewSplicer(mode)
			require.NoError(t, err)

			body, err := ParseBody([]byte(raw))
			require.NoError(t, err)
			require.NoError(t, s.Splice(body, body.Message(), "Ask them to count."))

			assert.JSONEq(t, `"t-1"`, string(body["thread_id"]))
			assert.JSONEq(t, `{"a":[1,2]}`, string(body["extra"]))
			assert.JSONEq(t, `"chat_message"`, string(body["command"]))

			msg := body.Message()
			assert.Contains(t, msg, "What is 2+2?")
			if mode == "field" {
				assert.Equal(t, "What is 2+2?", msg)
				assert.JSONEq(t, `"Ask them to count."`, string(body[GuidanceField]))
				return
			}
			assert.Contains(t, msg, "Ask them to count.")
			original, ok := s.Recover(msg)
			assert.True(t, ok)
			assert.Equal(t, "What is 2+2?", original)
		})
	}
}

func TestSplicer_RecoverPlainText(t *testing.T) {
	s, err := NewSplicer("tagged")
	require.NoError(t, err)
	got, ok := s.Recover("just a message")
	assert.False(t, ok)
	assert.Equal(t, "just a message", got)
}

func TestSplicer_RecoverMessageQuotingMarkers(t *testing.T) {
	for _, mode := range []string{"tagged", "principal"} {
		t.Run(mode, func(t *testing.T) {
			s, err := NewSplicer(mode)
			require.NoError(t, err)

			student := "why does" + guidanceOpen + "break things" + principalJoint + "here?"
			body := Body{}
			require.NoError(t, s.Splice(body, student, "Ask what the tag does."))

			got, ok := s.Recover(body.Message())
			assert.True(t, ok)
			assert.Equal(t, student, got)
		})
	}
}

func TestSplicer_RecoverTaggedNeedsCloseTag(t *testing.T) {
	s, err := NewSplicer("tagged")
	require.NoError(t, err)

	text := "hello" + guidanceOpen + "no close"
	got, ok := s.Recover(text)
	assert.False(t, ok)
	assert.Equal(t, text, got)

	got, ok = s.Recover("hello" + guidanceOpen + "g" + guidanceClose + "\n")
	assert.True(t, ok)
	assert.Equal(t, "hello", got)
}

func TestNewSplicer_Unknown(t *testing.T) {
	_, err := NewSplicer("xml")
	assert.Error(t, err)
}

func TestParseBody(t *testing.T) {
	_, err := ParseBody([]byte(`not json`))
	assert.Error(t, err)
	_, err = ParseBody([]byte(`null`))
	assert.Error(t, err)

	b, err := ParseBody([]byte(`{"message":42}`))
	require.NoError(t, err)
	assert.Empty(t, b.Message())
}

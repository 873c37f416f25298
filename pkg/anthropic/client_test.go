package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponseText(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "Hello, "},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "world."},
		},
	}
	assert.Equal(t, "Hello, world.", resp.Text())

	empty := &MessageResponse{}
	assert.Equal(t, "", empty.Text())
}

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})

	assert.Len(t, msgs, 2)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
}

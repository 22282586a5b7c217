package translator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick-relay/internal/models"
)

func TestBuildChatWithSystemPrompt(t *testing.T) {
	req, err := Build(models.RequestDescriptor{
		EndpointBase: "http://localhost:1234//",
		Model:        "llama",
		Prompt:       "Hi",
		SystemPrompt: "Be terse.",
		Protocol:     models.ProtocolChatCompletions,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:1234/v1/chat/completions", req.URL)
	assert.Equal(t, models.ProtocolChatCompletions, req.Protocol)
	assert.JSONEq(t, `{
		"model": "llama",
		"messages": [
			{"role": "system", "content": "Be terse."},
			{"role": "user", "content": "Hi"}
		],
		"stream": true
	}`, string(req.Body))
}

func TestBuildResponsesWithoutSystemPrompt(t *testing.T) {
	req, err := Build(models.RequestDescriptor{
		EndpointBase: "http://localhost:1234/",
		Model:        "llama",
		Prompt:       "Hi",
		Protocol:     models.ProtocolResponses,
	}, []models.Turn{{Role: models.RoleUser, Content: "ignored"}})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:1234/v1/responses", req.URL)
	assert.JSONEq(t, `{"model":"llama","input":"Hi","stream":true}`, string(req.Body))
}

func TestBuildResponsesPrefixesTrimmedSystemPrompt(t *testing.T) {
	req, err := Build(models.RequestDescriptor{
		EndpointBase: "http://h",
		Model:        "m",
		Prompt:       "Hi",
		SystemPrompt: "  Be terse.\n",
		Protocol:     models.ProtocolResponses,
	}, nil)
	require.NoError(t, err)

	var body responsesPayload
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "Be terse.\n\nHi", body.Input)
}

func TestBuildChatHistoryOrdering(t *testing.T) {
	history := []models.Turn{
		{Role: models.RoleUser, Content: "q0"},
		{Role: models.RoleAssistant, Content: "a0"},
	}
	desc := models.RequestDescriptor{
		EndpointBase:   "http://h",
		Model:          "m",
		Prompt:         "q1",
		SystemPrompt:   "sys",
		IncludeHistory: true,
	}

	req, err := Build(desc, history)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"model": "m",
		"messages": [
			{"role": "system", "content": "sys"},
			{"role": "user", "content": "q0"},
			{"role": "assistant", "content": "a0"},
			{"role": "user", "content": "q1"}
		],
		"stream": true
	}`, string(req.Body))

	desc.IncludeHistory = false
	req, err = Build(desc, history)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"model": "m",
		"messages": [
			{"role": "system", "content": "sys"},
			{"role": "user", "content": "q1"}
		],
		"stream": true
	}`, string(req.Body))
}

func TestBuildChatBlankSystemPromptOmitted(t *testing.T) {
	req, err := Build(models.RequestDescriptor{
		EndpointBase: "http://h",
		Model:        "m",
		Prompt:       "Hi",
		SystemPrompt: "   ",
	}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"m","messages":[{"role":"user","content":"Hi"}],"stream":true}`, string(req.Body))
}

func TestBuildChatImageAttachment(t *testing.T) {
	req, err := Build(models.RequestDescriptor{
		EndpointBase: "http://h",
		Model:        "m",
		Prompt:       "What is this?",
		ImageData:    "data:image/png;base64,AAAA",
	}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"model": "m",
		"messages": [
			{"role": "user", "content": [
				{"type": "text", "text": "What is this?"},
				{"type": "image_url", "image_url": {"url": "data:image/png;base64,AAAA"}}
			]}
		],
		"stream": true
	}`, string(req.Body))
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://h:1/v1/chat/completions", EndpointURL(" http://h:1/// ", ""))
	assert.Equal(t, "http://h:1/v1/responses", EndpointURL("http://h:1", models.ProtocolResponses))
}

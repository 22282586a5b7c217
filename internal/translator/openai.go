package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"sidekick-relay/internal/models"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	responsesPath       = "/v1/responses"
)

// WireRequest is a backend request ready to be sent: target URL and JSON body.
type WireRequest struct {
	URL      string
	Body     []byte
	Protocol models.Protocol
}

type chatPayload struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// chatMessage carries either a plain string or a list of content parts.
type chatMessage struct {
	Role    models.Role `json:"role"`
	Content any         `json:"content"`
}

type responsesPayload struct {
	Model  string `json:"model"`
	Input  string `json:"input"`
	Stream bool   `json:"stream"`
}

// TrimBase strips surrounding whitespace and trailing slashes from an endpoint base.
func TrimBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

// EndpointURL joins the endpoint base with the versioned path for protocol.
func EndpointURL(base string, protocol models.Protocol) string {
	switch protocol.Normalize() {
	case models.ProtocolResponses:
		return TrimBase(base) + responsesPath
	default:
		return TrimBase(base) + chatCompletionsPath
	}
}

// Build converts a descriptor and a history snapshot into the wire request for
// the descriptor's protocol. It performs no validation and no I/O; history is
// only consulted for chat completions with IncludeHistory set.
func Build(desc models.RequestDescriptor, history []models.Turn) (WireRequest, error) {
	protocol := desc.Protocol.Normalize()

	var payload any
	switch protocol {
	case models.ProtocolResponses:
		payload = buildResponsesPayload(desc)
	default:
		payload = buildChatPayload(desc, history)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return WireRequest{}, fmt.Errorf("marshal %s payload: %w", protocol, err)
	}

	return WireRequest{
		URL:      EndpointURL(desc.EndpointBase, protocol),
		Body:     body,
		Protocol: protocol,
	}, nil
}

func buildResponsesPayload(desc models.RequestDescriptor) responsesPayload {
	input := desc.Prompt
	if system := strings.TrimSpace(desc.SystemPrompt); system != "" {
		input = system + "\n\n" + desc.Prompt
	}
	return responsesPayload{
		Model:  desc.Model,
		Input:  input,
		Stream: true,
	}
}

func buildChatPayload(desc models.RequestDescriptor, history []models.Turn) chatPayload {
	messages := make([]chatMessage, 0, len(history)+2)

	if system := strings.TrimSpace(desc.SystemPrompt); system != "" {
		messages = append(messages, chatMessage{Role: models.RoleSystem, Content: system})
	}

	if desc.IncludeHistory {
		for _, turn := range history {
			messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
		}
	}

	messages = append(messages, chatMessage{
		Role:    models.RoleUser,
		Content: userContent(desc.Prompt, desc.ImageData),
	})

	return chatPayload{
		Model:    desc.Model,
		Messages: messages,
		Stream:   true,
	}
}

func userContent(prompt, imageData string) any {
	if imageData == "" {
		return prompt
	}
	return []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: prompt},
		{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageData}},
	}
}

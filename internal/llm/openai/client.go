// Package openai adapts llm.Provider to the OpenAI Chat Completions API,
// grounded on the teacher's internal/llm/openai/client.go but trimmed to the
// single non-streaming, JSON-forced completion C8/C9 require.
package openai

import (
	"context"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"nur/internal/llm"
	"nur/internal/observability"
)

// Client implements llm.Provider against the OpenAI Chat Completions API.
type Client struct {
	sdk sdk.Client
}

// New builds a Client. baseURL may be empty to use the default API host,
// or point at an OpenAI-compatible self-hosted endpoint.
func New(apiKey, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	return &Client{sdk: sdk.NewClient(opts...)}
}

// Chat sends msgs to model, requesting a JSON-object response, matching
// spec.md §9's "parse strictly against a closed JSON schema" requirement by
// forcing the provider to emit a JSON object rather than free text.
func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (string, error) {
	ctx, end := observability.StartSpan(ctx, "nur.llm.openai", "chat")
	defer end()
	log := observability.LoggerWithTrace(ctx)

	converted := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			converted = append(converted, sdk.SystemMessage(m.Content))
		case "assistant":
			converted = append(converted, sdk.AssistantMessage(m.Content))
		default:
			converted = append(converted, sdk.UserMessage(m.Content))
		}
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:    model,
		Messages: converted,
		ResponseFormat: sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &sdk.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		log.Error().Err(err).Str("model", model).Msg("openai_chat_error")
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	content := resp.Choices[0].Message.Content
	log.Debug().Str("model", model).Int("response_len", len(content)).Msg("openai_chat_ok")
	return content, nil
}

var _ llm.Provider = (*Client)(nil)

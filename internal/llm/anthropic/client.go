// Package anthropic adapts llm.Provider to the Anthropic Messages API,
// grounded on the teacher's internal/llm/anthropic/client.go but trimmed to
// the single non-streaming, no-tool-call completion C8/C9 require.
package anthropic

import (
	"context"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"nur/internal/llm"
	"nur/internal/observability"
)

const defaultMaxTokens int64 = 2048

// Client implements llm.Provider against the Anthropic Messages API.
type Client struct {
	sdk       anthropicsdk.Client
	maxTokens int64
}

// New builds a Client. baseURL may be empty to use the default API host.
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
	return &Client{sdk: anthropicsdk.NewClient(opts...), maxTokens: defaultMaxTokens}
}

// Chat sends msgs to model and returns the assistant's text content.
func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (string, error) {
	ctx, end := observability.StartSpan(ctx, "nur.llm.anthropic", "chat")
	defer end()
	log := observability.LoggerWithTrace(ctx)

	var system string
	converted := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			converted = append(converted, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		Messages:  converted,
		MaxTokens: c.maxTokens,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", model).Msg("anthropic_chat_error")
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			sb.WriteString(text)
		}
	}
	log.Debug().Str("model", model).Int("response_len", sb.Len()).Msg("anthropic_chat_ok")
	return sb.String(), nil
}

var _ llm.Provider = (*Client)(nil)

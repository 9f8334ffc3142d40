package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/classify"
	"github.com/mikey/mail-triage/internal/core"
)

// OpenAIClient asks an OpenAI chat model for triage verdicts
type OpenAIClient struct {
	client       *openai.Client
	modelName    string
	maxTokens    int
	temperature  float32
	maxBodyChars int
	logger       *zap.Logger
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	maxBodyChars int,
	logger *zap.Logger,
) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClient{
		client:       client,
		modelName:    modelName,
		maxTokens:    maxTokens,
		temperature:  temperature,
		maxBodyChars: maxBodyChars,
		logger:       logger,
	}
}

// ClassifyMessage asks the model for a verdict on msg
func (c *OpenAIClient) ClassifyMessage(ctx context.Context, msg *core.NormalizedMessage) (*core.Verdict, error) {
	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: classify.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: classify.BuildUserPrompt(msg, c.maxBodyChars),
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   classify.SchemaName,
				Schema: classify.ResponseSchema,
				Strict: true,
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to create chat completion with OpenAI: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	v, err := classify.ParseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, classify.Permanent(err)
	}
	v.ModelUsed = c.modelName

	c.logger.Debug("OpenAI verdict",
		zap.String("message_id", msg.MessageID),
		zap.String("classification", string(v.Classification)),
		zap.Float64("confidence", v.Confidence),
		zap.String("response_id", resp.ID))
	return v, nil
}

// classifyError marks client-side API errors as permanent. Rate limits and
// server errors stay retryable.
func classifyError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return classify.Permanent(err)
	}
	return err
}

package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/mail-triage/internal/classify"
	"github.com/mikey/mail-triage/internal/core"
)

// contentGenerator is the part of genai.GenerativeModel the client uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiClient asks a Google Gemini model for triage verdicts
type GeminiClient struct {
	client       *genai.Client
	model        contentGenerator
	modelName    string
	maxBodyChars int
	logger       *zap.Logger
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodyChars int,
	logger *zap.Logger,
) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(classify.SystemPrompt))

	c := newGeminiClient(model, modelName, maxBodyChars, logger)
	c.client = client
	return c, nil
}

func newGeminiClient(model contentGenerator, modelName string, maxBodyChars int, logger *zap.Logger) *GeminiClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{
		model:        model,
		modelName:    modelName,
		maxBodyChars: maxBodyChars,
		logger:       logger,
	}
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ClassifyMessage asks the model for a verdict on msg
func (c *GeminiClient) ClassifyMessage(ctx context.Context, msg *core.NormalizedMessage) (*core.Verdict, error) {
	prompt := classify.BuildUserPrompt(msg, c.maxBodyChars)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	v, err := classify.ParseVerdict(text)
	if err != nil {
		return nil, classify.Permanent(err)
	}
	v.ModelUsed = c.modelName

	c.logger.Debug("Gemini verdict",
		zap.String("message_id", msg.MessageID),
		zap.String("classification", string(v.Classification)),
		zap.Float64("confidence", v.Confidence))
	return v, nil
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/classify"
	"github.com/mikey/mail-triage/internal/core"
)

const anthropicVersion = "bedrock-2023-05-31"

// modelInvoker is the part of bedrockruntime.Client the client uses
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient asks an Amazon Bedrock model for triage verdicts
type BedrockClient struct {
	client       modelInvoker
	modelID      string
	maxTokens    int
	temperature  float32
	topP         float32
	maxBodyChars int
	logger       *zap.Logger
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodyChars int,
	logger *zap.Logger,
) *BedrockClient {
	return newBedrockClient(client, modelID, maxTokens, temperature, topP, maxBodyChars, logger)
}

func newBedrockClient(client modelInvoker, modelID string, maxTokens int, temperature, topP float32, maxBodyChars int, logger *zap.Logger) *BedrockClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BedrockClient{
		client:       client,
		modelID:      modelID,
		maxTokens:    maxTokens,
		temperature:  temperature,
		topP:         topP,
		maxBodyChars: maxBodyChars,
		logger:       logger,
	}
}

func (c *BedrockClient) isAnthropicModel() bool {
	return strings.Contains(c.modelID, "anthropic.")
}

func (c *BedrockClient) isAmazonTitanModel() bool {
	return strings.Contains(c.modelID, "amazon.titan")
}

// ClassifyMessage asks the model for a verdict on msg
func (c *BedrockClient) ClassifyMessage(ctx context.Context, msg *core.NormalizedMessage) (*core.Verdict, error) {
	payload, err := c.buildPayload(classify.BuildUserPrompt(msg, c.maxBodyChars))
	if err != nil {
		return nil, classify.Permanent(fmt.Errorf("failed to marshal request payload: %w", err))
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to invoke Bedrock model: %w", err))
	}

	text, err := c.extractText(resp.Body)
	if err != nil {
		return nil, classify.Permanent(err)
	}

	v, err := classify.ParseVerdict(text)
	if err != nil {
		return nil, classify.Permanent(err)
	}
	v.ModelUsed = c.modelID

	c.logger.Debug("Bedrock verdict",
		zap.String("message_id", msg.MessageID),
		zap.String("model_id", c.modelID),
		zap.String("classification", string(v.Classification)),
		zap.Float64("confidence", v.Confidence))
	return v, nil
}

func (c *BedrockClient) buildPayload(prompt string) ([]byte, error) {
	switch {
	case c.isAnthropicModel():
		return json.Marshal(map[string]interface{}{
			"anthropic_version": anthropicVersion,
			"max_tokens":        c.maxTokens,
			"temperature":       c.temperature,
			"top_p":             c.topP,
			"system":            classify.SystemPrompt,
			"messages": []map[string]interface{}{
				{"role": "user", "content": prompt},
			},
		})
	case c.isAmazonTitanModel():
		return json.Marshal(map[string]interface{}{
			"inputText": classify.SystemPrompt + "\n\n" + prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	default:
		return json.Marshal(map[string]interface{}{
			"prompt":      classify.SystemPrompt + "\n\n" + prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
}

func (c *BedrockClient) extractText(body []byte) (string, error) {
	switch {
	case c.isAnthropicModel():
		var claudeResp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var b strings.Builder
		for _, block := range claudeResp.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		if b.Len() == 0 {
			return "", fmt.Errorf("empty response from Claude model")
		}
		return b.String(), nil

	case c.isAmazonTitanModel():
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil

	default:
		var genericResp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &genericResp); err != nil {
			return string(body), nil
		}
		for _, s := range []string{genericResp.Output, genericResp.Text, genericResp.Response} {
			if s != "" {
				return s, nil
			}
		}
		return string(body), nil
	}
}

// classifyError marks request validation and access failures as permanent
func classifyError(err error) error {
	var validation *types.ValidationException
	var denied *types.AccessDeniedException
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &validation) || errors.As(err, &denied) || errors.As(err, &notFound) {
		return classify.Permanent(err)
	}
	return err
}

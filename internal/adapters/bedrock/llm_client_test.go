package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/mail-triage/internal/classify"
	"github.com/mikey/mail-triage/internal/core"
)

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

var msg = &core.NormalizedMessage{MessageID: "m1", Subject: "Contract", BodyText: "Can you sign by Friday?"}

func TestClassifyMessage_Anthropic(t *testing.T) {
	inv := &fakeInvoker{body: `{"content":[{"type":"text","text":"{\"classification\":\"action_request\",\"confidence\":0.9,\"asks_me_specifically\":true}"}]}`}
	c := newBedrockClient(inv, "anthropic.claude-3-haiku-20240307-v1:0", 400, 0, 1, 4000, nil)

	v, err := c.ClassifyMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, core.ClassActionRequest, v.Classification)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", v.ModelUsed)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(inv.input.Body, &payload))
	assert.Equal(t, anthropicVersion, payload["anthropic_version"])
	assert.Equal(t, classify.SystemPrompt, payload["system"])
	assert.EqualValues(t, 400, payload["max_tokens"])
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", aws.ToString(inv.input.ModelId))
}

func TestClassifyMessage_Titan(t *testing.T) {
	inv := &fakeInvoker{body: `{"results":[{"outputText":"{\"classification\":\"fyi\",\"confidence\":0.7}"}]}`}
	c := newBedrockClient(inv, "amazon.titan-text-express-v1", 400, 0, 1, 4000, nil)

	v, err := c.ClassifyMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, core.ClassFYI, v.Classification)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(inv.input.Body, &payload))
	assert.Contains(t, payload["inputText"], "SUBJECT: Contract")
}

func TestClassifyMessage_Generic(t *testing.T) {
	inv := &fakeInvoker{body: `{"output":"{\"classification\":\"spam_or_noise\",\"confidence\":0.99}"}`}
	c := newBedrockClient(inv, "meta.llama3-8b-instruct-v1:0", 400, 0, 1, 4000, nil)

	v, err := c.ClassifyMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, core.ClassSpamOrNoise, v.Classification)
}

func TestClassifyMessage_ErrorClasses(t *testing.T) {
	var perm *classify.PermanentError

	c := newBedrockClient(&fakeInvoker{err: &types.ValidationException{Message: aws.String("bad input")}}, "anthropic.claude", 1, 0, 1, 0, nil)
	_, err := c.ClassifyMessage(context.Background(), msg)
	assert.True(t, errors.As(err, &perm))

	c = newBedrockClient(&fakeInvoker{err: &types.ThrottlingException{Message: aws.String("slow down")}}, "anthropic.claude", 1, 0, 1, 0, nil)
	_, err = c.ClassifyMessage(context.Background(), msg)
	require.Error(t, err)
	assert.False(t, errors.As(err, &perm))

	c = newBedrockClient(&fakeInvoker{body: `{"content":[]}`}, "anthropic.claude", 1, 0, 1, 0, nil)
	_, err = c.ClassifyMessage(context.Background(), msg)
	assert.True(t, errors.As(err, &perm))
}

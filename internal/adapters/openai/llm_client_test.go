package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/classify"
	"github.com/mikey/mail-triage/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewOpenAIClient(openai.NewClientWithConfig(cfg), "gpt-4o-mini", 400, 0, 4000, zap.NewNop())
}

func TestClassifyMessage(t *testing.T) {
	requests := make(chan map[string]any, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		requests <- body
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1",
			"choices": []map[string]any{{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": `{"classification":"meeting_request","confidence":0.82,"asks_me_specifically":true,"should_flag":true}`,
				},
			}},
		})
	})

	v, err := c.ClassifyMessage(context.Background(), &core.NormalizedMessage{
		MessageID: "m1",
		Subject:   "Sync tomorrow?",
		BodyText:  "Dan, can we meet at 10?",
	})
	require.NoError(t, err)

	assert.Equal(t, core.ClassMeetingRequest, v.Classification)
	assert.Equal(t, "gpt-4o-mini", v.ModelUsed)
	assert.True(t, v.Meets(0.75))

	var got map[string]any
	select {
	case got = <-requests:
	default:
		t.Fatal("no request reached the server")
	}
	assert.Equal(t, "gpt-4o-mini", got["model"])

	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	system, _ := messages[0].(map[string]any)
	prompt, _ := messages[1].(map[string]any)
	assert.Equal(t, classify.SystemPrompt, system["content"])
	assert.Contains(t, prompt["content"], "SUBJECT: Sync tomorrow?")

	format, ok := got["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(openai.ChatCompletionResponseFormatTypeJSONSchema), format["type"])
}

func TestClassifyMessage_ClientErrorIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad schema","type":"invalid_request_error"}}`))
	})

	_, err := c.ClassifyMessage(context.Background(), &core.NormalizedMessage{BodyText: "x"})
	var perm *classify.PermanentError
	assert.True(t, errors.As(err, &perm))
}

func TestClassifyMessage_ServerErrorIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})

	_, err := c.ClassifyMessage(context.Background(), &core.NormalizedMessage{BodyText: "x"})
	require.Error(t, err)
	var perm *classify.PermanentError
	assert.False(t, errors.As(err, &perm))
}

func TestClassifyMessage_UnusableReplyIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"I cannot help"}}]}`))
	})

	_, err := c.ClassifyMessage(context.Background(), &core.NormalizedMessage{BodyText: "x"})
	assert.ErrorIs(t, err, classify.ErrInvalidResponse)
	var perm *classify.PermanentError
	assert.True(t, errors.As(err, &perm))
}

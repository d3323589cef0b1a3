package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("sk-test", "gpt-4o-mini")
	c.BaseURL = srv.URL
	return c
}

func TestEnhanceKeepsTriggerWordInstruction(t *testing.T) {
	var got chatRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "  a cinematic photo of zog  "}},
			},
		})
	})

	enhanced, err := c.Enhance(context.Background(), "photo of me", "zog")
	require.NoError(t, err)
	assert.Equal(t, "a cinematic photo of zog", enhanced)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, `"zog"`)
	assert.Equal(t, "photo of me", got.Messages[1].Content)
	assert.Equal(t, "gpt-4o-mini", got.Model)
}

func TestEnhanceEmptyChoices(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	_, err := c.Enhance(context.Background(), "photo of me", "zog")
	assert.Error(t, err)
}

func TestEnhanceUnauthorized(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	})

	_, err := c.Enhance(context.Background(), "photo of me", "zog")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

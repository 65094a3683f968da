package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGeminiGenerate(t *testing.T) {
	t.Parallel()

	var captured geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Contains(t, r.URL.Path, "/models/gemini-2.0-flash:generateContent")
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": `{"actions":[]}`}},
				},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	p := NewGeminiProvider("test-key", "gemini-2.0-flash", time.Second)
	p.SetEndpoint(srv.URL)

	out, err := p.Generate(context.Background(), Request{
		System:    "you are a ledger",
		Messages:  []Message{{Role: "user", Text: "record my coffee"}},
		Media:     &MediaBlob{MIMEType: "image/png", Data: []byte{1, 2, 3}},
		MaxTokens: 512,
	})
	require.NoError(t, err)
	require.Equal(t, `{"actions":[]}`, out)

	require.NotNil(t, captured.SystemInstruction)
	require.Equal(t, "you are a ledger", captured.SystemInstruction.Parts[0].Text)
	require.Len(t, captured.Contents, 1)
	require.Equal(t, "user", captured.Contents[0].Role)
	// Text part plus the inline image appended to the same turn.
	require.Len(t, captured.Contents[0].Parts, 2)
	require.NotNil(t, captured.Contents[0].Parts[1].InlineData)
	require.Equal(t, "image/png", captured.Contents[0].Parts[1].InlineData.MIMEType)
	require.Equal(t, "application/json", captured.GenerationConfig["responseMimeType"])
}

func TestGeminiGenerateErrors(t *testing.T) {
	t.Parallel()

	p := NewGeminiProvider("", "gemini-2.0-flash", time.Second)
	_, err := p.Generate(context.Background(), Request{Messages: []Message{{Text: "x"}}})
	require.ErrorIs(t, err, ErrGeminiNoAPIKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	p = NewGeminiProvider("test-key", "", time.Second)
	p.SetEndpoint(srv.URL)
	_, err = p.Generate(context.Background(), Request{Messages: []Message{{Text: "x"}}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailtriage/internal/model"
)

func sampleRequest() Request {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return Request{
		Message: model.MessageRecord{
			ID:          "INBOX/5",
			Sender:      "deals@shop.example",
			SenderName:  "Shop",
			Subject:     "50% off everything",
			ReceivedAt:  now.Add(-72 * time.Hour),
			BodyPreview: "Shop now and save big",
			SizeBytes:   2048,
		},
		Exemplars: []model.Exemplar{{
			Sender:        "deals@shop.example",
			Subject:       "Weekend sale",
			Category:      "promotional",
			VerdictLabel:  model.LabelDelete,
			ApprovedLabel: model.LabelDelete,
		}},
		Now: now,
	}
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Result
		wantErr bool
	}{
		{
			name: "plain json",
			in:   `{"recommendation":"delete","confidence_score":0.9,"reasoning":"promo","category":"promotional","priority":"low"}`,
			want: Result{Label: model.LabelDelete, Confidence: 0.9, Reasoning: "promo", Category: "promotional", Priority: "low"},
		},
		{
			name: "fenced json with defaults",
			in:   "```json\n{\"recommendation\":\"Keep\",\"confidence_score\":0.6}\n```",
			want: Result{Label: model.LabelKeep, Confidence: 0.6, Category: "unknown", Priority: "medium"},
		},
		{
			name: "confidence clamped",
			in:   `{"recommendation":"archive","confidence_score":1.7}`,
			want: Result{Label: model.LabelArchive, Confidence: 1, Category: "unknown", Priority: "medium"},
		},
		{name: "not json", in: "I think you should delete it", wantErr: true},
		{name: "unknown label", in: `{"recommendation":"shred","confidence_score":0.9}`, wantErr: true},
		{name: "missing confidence", in: `{"recommendation":"keep"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResult(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(sampleRequest())

	assert.Contains(t, p, "From: Shop <deals@shop.example>")
	assert.Contains(t, p, "3 days old")
	assert.Contains(t, p, "2.0 kB")
	assert.Contains(t, p, `"Weekend sale" was deleted (category: promotional)`)
	assert.Contains(t, p, `"recommendation": "delete|keep|archive"`)
}

func TestOllamaScore(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Model:    "llama3.1:8b",
			Response: `{"recommendation":"delete","confidence_score":0.88,"category":"promotional"}`,
			Done:     true,
		})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.1:8b", srv.Client())
	res, err := o.Score(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, model.LabelDelete, res.Label)
	assert.Equal(t, 0.88, res.Confidence)
	assert.Equal(t, "llama3.1:8b", res.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, "json", got.Format)
	assert.Contains(t, got.Prompt, "deals@shop.example")
}

func TestOllamaMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "sorry, no idea"})
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "m", srv.Client()).Score(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ollamaError{Error: "model not found"})
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "m", srv.Client()).Score(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:8b"},{"name":"mistral:latest"}]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, NewOllama(srv.URL, "mistral", srv.Client()).Ping(ctx))
	require.Error(t, NewOllama(srv.URL, "phi3", srv.Client()).Ping(ctx))
}

func TestAnthropicScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req apiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, systemPrompt, req.System)
		assert.Len(t, req.Messages, 1)

		_ = json.NewEncoder(w).Encode(apiResponse{
			Content: []apiContentBlock{{
				Type: "text",
				Text: `{"recommendation":"keep","confidence_score":0.7,"reasoning":"personal"}`,
			}},
		})
	}))
	defer srv.Close()

	a := NewAnthropic("secret", "", 0, srv.Client()).WithURL(srv.URL)
	res, err := a.Score(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, model.LabelKeep, res.Label)
	assert.Equal(t, defaultAnthropicModel, res.Model)
}

func TestAnthropicAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	_, err := NewAnthropic("bad", "", 0, srv.Client()).WithURL(srv.URL).Score(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid x-api-key")
}

func TestNew(t *testing.T) {
	cfg := model.DefaultAppConfig().Oracle

	o, err := New(cfg, "")
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, o)

	cfg.Provider = "anthropic"
	_, err = New(cfg, "")
	require.Error(t, err)

	o, err = New(cfg, "key")
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, o)
}

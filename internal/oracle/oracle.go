// Package oracle talks to the language model that scores messages the
// deterministic tiers could not decide.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/mailtriage/internal/model"
)

// ErrMalformed is returned when the model's reply cannot be parsed into a
// valid label and confidence.
var ErrMalformed = errors.New("malformed oracle response")

// Request carries one message and the past decisions shown as examples.
type Request struct {
	Message   model.MessageRecord
	Exemplars []model.Exemplar
	Now       time.Time
}

// Result is the oracle's raw judgement.
type Result struct {
	Label      model.Label
	Confidence float64
	Reasoning  string
	Category   string
	Priority   string
	Model      string
}

// Oracle scores a single message.
type Oracle interface {
	Score(ctx context.Context, req Request) (Result, error)
	Model() string
}

// New builds the oracle selected by cfg. apiKey is only used by providers
// that need one.
func New(cfg model.OracleConfig, apiKey string) (Oracle, error) {
	client := &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}

	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model, client), nil
	case "anthropic":
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic oracle requires an API key")
		}
		return NewAnthropic(apiKey, cfg.Model, cfg.MaxTokens, client), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}

type wireResult struct {
	Recommendation  string   `json:"recommendation"`
	ConfidenceScore *float64 `json:"confidence_score"`
	Reasoning       string   `json:"reasoning"`
	Category        string   `json:"category"`
	Priority        string   `json:"priority"`
}

// ParseResult decodes the JSON reply, tolerating a surrounding markdown
// code fence. Confidence outside [0,1] is clamped.
func ParseResult(text string) (Result, error) {
	body := stripFence(text)

	var w wireResult
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	label, err := model.ParseLabel(strings.ToLower(strings.TrimSpace(w.Recommendation)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.ConfidenceScore == nil || math.IsNaN(*w.ConfidenceScore) {
		return Result{}, fmt.Errorf("%w: missing confidence_score", ErrMalformed)
	}

	r := Result{
		Label:      label,
		Confidence: math.Max(0, math.Min(1, *w.ConfidenceScore)),
		Reasoning:  w.Reasoning,
		Category:   w.Category,
		Priority:   w.Priority,
	}
	if r.Category == "" {
		r.Category = "unknown"
	}
	if r.Priority == "" {
		r.Priority = "medium"
	}
	return r, nil
}

func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if last := strings.TrimSpace(lines[len(lines)-1]); strings.HasPrefix(last, "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

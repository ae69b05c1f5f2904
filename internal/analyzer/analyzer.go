package analyzer

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/ollama/ollama/api"
)

//go:embed prompts/aspect_sentiment.txt
var defaultPrompt string

var promptTemplate = template.Must(template.New("aspect_sentiment").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(defaultPrompt))

// Labels a classification may carry.
const (
	LabelPositive = "Positif"
	LabelNeutral  = "Netral"
	LabelNegative = "Negatif"
)

// ErrEmptyReview is returned for blank input. The text is shown to users.
var ErrEmptyReview = errors.New("Silakan masukkan ulasan terlebih dahulu.")

const maxReviewLen = 4000

// Result maps aspect name to label.
type Result map[string]string

// Analyzer classifies a single review per aspect with an Ollama model.
type Analyzer struct {
	client      *api.Client
	model       string
	temperature float64
	aspects     []string
}

// New creates an analyzer talking to the Ollama server at baseURL. It does
// not contact the server until Analyze is called.
func New(baseURL, model string, temperature float64, aspects []string, httpClient *http.Client) (*Analyzer, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if model == "" {
		return nil, errors.New("analyzer model is required")
	}
	if len(aspects) == 0 {
		return nil, errors.New("at least one aspect is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Analyzer{
		client:      api.NewClient(parsedURL, httpClient),
		model:       model,
		temperature: temperature,
		aspects:     aspects,
	}, nil
}

// Aspects returns the aspect names the analyzer classifies.
func (a *Analyzer) Aspects() []string {
	return append([]string(nil), a.aspects...)
}

// Analyze labels every configured aspect of one review. Aspects the model
// leaves out or labels with something unrecognized come back Netral.
func (a *Analyzer) Analyze(ctx context.Context, review string) (Result, error) {
	review = strings.TrimSpace(review)
	if review == "" {
		return nil, ErrEmptyReview
	}

	var prompt bytes.Buffer
	err := promptTemplate.Execute(&prompt, struct {
		Aspects []string
		Review  string
	}{a.aspects, truncateText(review, maxReviewLen)})
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	req := &api.GenerateRequest{
		Model:  a.model,
		Prompt: prompt.String(),
		Stream: new(bool), // false
		Options: map[string]interface{}{
			"temperature": a.temperature,
		},
	}

	var fullResponse strings.Builder
	err = a.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama analysis failed: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(extractJSON(fullResponse.String())), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	byKey := make(map[string]string, len(raw))
	for k, v := range raw {
		byKey[strings.ToLower(strings.TrimSpace(k))] = v
	}
	result := make(Result, len(a.aspects))
	for _, aspect := range a.aspects {
		result[aspect] = normalizeLabel(byKey[strings.ToLower(aspect)])
	}
	return result, nil
}

func normalizeLabel(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positif", "positive":
		return LabelPositive
	case "negatif", "negative":
		return LabelNegative
	}
	return LabelNeutral
}

// truncateText truncates text to at most maxLen bytes without splitting a
// rune.
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// extractJSON attempts to extract JSON from a text response that might contain extra text
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

package topic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// LLMClient asks a text-generation service speaking the Ollama
// /api/generate protocol for a topic pair.
type LLMClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewLLMClient(baseURL, model string, timeout time.Duration) *LLMClient {
	return &LLMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *LLMClient) GenerateTopics(ctx context.Context, req Request) (Pair, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: buildPrompt(req),
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return Pair{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Pair{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Pair{}, fmt.Errorf("topic request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Pair{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Pair{}, fmt.Errorf("topic service returned status %d: %s", resp.StatusCode, string(raw))
	}

	var gen generateResponse
	if err := json.Unmarshal(raw, &gen); err != nil {
		return Pair{}, fmt.Errorf("unmarshal response: %w", err)
	}

	pair, err := parsePair(gen.Response)
	if err != nil {
		return Pair{}, err
	}

	log.Debug().
		Str("category", req.Category).
		Str("model", c.model).
		Dur("elapsed", time.Since(start)).
		Msg("topics generated")
	return pair, nil
}

// categoryHints narrows generic categories into the flavour the curated lists use.
var categoryHints = map[string]string{
	"movies":      "bollywood movies",
	"celebrities": "Indian celebrities",
	"tv_shows":    "Indian tv shows",
	"fruits":      "Indian fruits",
	"foods":       "Indian foods",
}

func buildPrompt(req Request) string {
	category := strings.ToLower(strings.TrimSpace(req.Category))
	if hint, ok := categoryHints[category]; ok {
		category = hint
	}

	var b strings.Builder
	b.WriteString("Generate a unique pair of topics for a social deduction game called \"Guess the Imposter\".\n")
	fmt.Fprintf(&b, "Category: %s\n", category)
	fmt.Fprintf(&b, "Randomness Token: %d\n\n", rand.IntN(10000)+1)
	fmt.Fprintf(&b, "- Create TWO similar but distinct items from the category %s.\n", category)
	b.WriteString("- Return only JSON with the keys \"player_topic\" and \"imposter_topic\".\n")
	b.WriteString("- The player_topic should be well known; the imposter_topic less obvious but plausible.\n")
	if !req.Previous.IsZero() {
		fmt.Fprintf(&b, "- Do not repeat the previous pair '%s' and '%s'.\n", req.Previous.PlayerTopic, req.Previous.ImposterTopic)
	}
	return b.String()
}

// parsePair extracts the topic object from a model response that may carry
// surrounding text or markdown fences.
func parsePair(response string) (Pair, error) {
	response = strings.TrimSpace(response)
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return Pair{}, fmt.Errorf("%w: no JSON object in response", ErrInvalidPair)
	}

	var pair Pair
	if err := json.Unmarshal([]byte(response[start:end+1]), &pair); err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrInvalidPair, err)
	}
	pair.PlayerTopic = strings.TrimSpace(pair.PlayerTopic)
	pair.ImposterTopic = strings.TrimSpace(pair.ImposterTopic)
	return pair, pair.Validate()
}

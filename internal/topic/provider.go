// Package topic supplies the secret topic pair for a round.
package topic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/imposter-server-go/internal/metrics"
)

var ErrInvalidPair = errors.New("topic: provider returned an unusable pair")

type Pair struct {
	PlayerTopic   string `json:"player_topic"`
	ImposterTopic string `json:"imposter_topic"`
}

func (p Pair) IsZero() bool {
	return p.PlayerTopic == "" && p.ImposterTopic == ""
}

// Validate rejects pairs that are empty or not distinct.
func (p Pair) Validate() error {
	a := strings.TrimSpace(p.PlayerTopic)
	b := strings.TrimSpace(p.ImposterTopic)
	if a == "" || b == "" || strings.EqualFold(a, b) {
		return fmt.Errorf("%w: %q / %q", ErrInvalidPair, p.PlayerTopic, p.ImposterTopic)
	}
	return nil
}

type Request struct {
	Category string
	// Previous is the pair used by the last round, to be avoided if possible.
	Previous Pair
}

// Provider generates a player/imposter topic pair for a category.
type Provider interface {
	GenerateTopics(ctx context.Context, req Request) (Pair, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Pair, error)

func (f ProviderFunc) GenerateTopics(ctx context.Context, req Request) (Pair, error) {
	return f(ctx, req)
}

type chain struct {
	primary  Provider
	fallback Provider
}

// WithFallback returns a Provider that asks primary first and falls back when
// it errors or returns an unusable pair.
func WithFallback(primary, fallback Provider) Provider {
	return &chain{primary: primary, fallback: fallback}
}

func (c *chain) GenerateTopics(ctx context.Context, req Request) (Pair, error) {
	pair, err := c.primary.GenerateTopics(ctx, req)
	if err == nil {
		err = pair.Validate()
	}
	if err == nil {
		return pair, nil
	}
	if ctx.Err() != nil {
		return Pair{}, ctx.Err()
	}

	log.Warn().
		Err(err).
		Str("category", req.Category).
		Msg("primary topic provider failed, using fallback")
	return c.fallback.GenerateTopics(ctx, req)
}

type instrumented struct {
	source string
	next   Provider
}

// Instrument records call counts and latency for next under the given source label.
func Instrument(source string, next Provider) Provider {
	return &instrumented{source: source, next: next}
}

func (i *instrumented) GenerateTopics(ctx context.Context, req Request) (Pair, error) {
	start := time.Now()
	pair, err := i.next.GenerateTopics(ctx, req)
	metrics.RecordTopicCall(i.source, err == nil, time.Since(start))
	return pair, err
}

package topic

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairValidate(t *testing.T) {
	assert.NoError(t, Pair{"Lion", "Tiger"}.Validate())
	assert.ErrorIs(t, Pair{"Lion", ""}.Validate(), ErrInvalidPair)
	assert.ErrorIs(t, Pair{"Lion", " lion "}.Validate(), ErrInvalidPair)
}

func TestParsePair(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		p, err := parsePair(`{"player_topic":"Lion","imposter_topic":"Tiger"}`)
		require.NoError(t, err)
		assert.Equal(t, Pair{"Lion", "Tiger"}, p)
	})

	t.Run("fenced JSON with chatter", func(t *testing.T) {
		p, err := parsePair("Sure!\n```json\n{\"player_topic\": \" Mango \", \"imposter_topic\": \"Guava\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, Pair{"Mango", "Guava"}, p)
	})

	t.Run("no object", func(t *testing.T) {
		_, err := parsePair("no idea")
		assert.ErrorIs(t, err, ErrInvalidPair)
	})
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(Request{Category: "Movies", Previous: Pair{"Sholay", "Don"}})
	assert.Contains(t, prompt, "bollywood movies")
	assert.Contains(t, prompt, "'Sholay' and 'Don'")
}

func TestLLMClient(t *testing.T) {
	t.Run("parses generate response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/generate", r.URL.Path)
			var req generateRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "llama3", req.Model)
			assert.False(t, req.Stream)
			assert.Contains(t, req.Prompt, "animals")

			json.NewEncoder(w).Encode(generateResponse{
				Response: `{"player_topic":"Lion","imposter_topic":"Tiger"}`,
				Done:     true,
			})
		}))
		defer srv.Close()

		c := NewLLMClient(srv.URL+"/", "llama3", time.Second)
		p, err := c.GenerateTopics(context.Background(), Request{Category: "animals"})
		require.NoError(t, err)
		assert.Equal(t, Pair{"Lion", "Tiger"}, p)
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewLLMClient(srv.URL, "llama3", time.Second).GenerateTopics(context.Background(), Request{Category: "animals"})
		assert.Error(t, err)
	})

	t.Run("identical topics are rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(generateResponse{Response: `{"player_topic":"Lion","imposter_topic":"Lion"}`})
		}))
		defer srv.Close()

		_, err := NewLLMClient(srv.URL, "llama3", time.Second).GenerateTopics(context.Background(), Request{Category: "animals"})
		assert.ErrorIs(t, err, ErrInvalidPair)
	})
}

func TestFallbackProvider(t *testing.T) {
	t.Run("returns distinct topics from the category", func(t *testing.T) {
		f := NewFallbackProvider(rand.New(rand.NewPCG(1, 2)))
		for i := 0; i < 50; i++ {
			p, err := f.GenerateTopics(context.Background(), Request{Category: "Fruits"})
			require.NoError(t, err)
			assert.NoError(t, p.Validate())
			assert.Contains(t, curated["fruits"], p.PlayerTopic)
			assert.Contains(t, curated["fruits"], p.ImposterTopic)
		}
	})

	t.Run("avoids the previous pair", func(t *testing.T) {
		f := NewFallbackProvider(rand.New(rand.NewPCG(3, 4)))
		prev := Pair{"Cricket", "Kabaddi"}
		for i := 0; i < 50; i++ {
			p, _ := f.GenerateTopics(context.Background(), Request{Category: "sports", Previous: prev})
			assert.NotEqual(t, prev, p)
			prev = p
		}
	})

	t.Run("unknown category uses generic list", func(t *testing.T) {
		f := NewFallbackProvider(nil)
		p, err := f.GenerateTopics(context.Background(), Request{Category: "quantum physics"})
		require.NoError(t, err)
		assert.Contains(t, generic, p.PlayerTopic)
		assert.NoError(t, p.Validate())
	})
}

func TestWithFallback(t *testing.T) {
	fixed := ProviderFunc(func(ctx context.Context, req Request) (Pair, error) {
		return Pair{"Sun", "Moon"}, nil
	})

	t.Run("uses primary when it succeeds", func(t *testing.T) {
		primary := ProviderFunc(func(ctx context.Context, req Request) (Pair, error) {
			return Pair{"Lion", "Tiger"}, nil
		})
		p, err := WithFallback(primary, fixed).GenerateTopics(context.Background(), Request{Category: "animals"})
		require.NoError(t, err)
		assert.Equal(t, Pair{"Lion", "Tiger"}, p)
	})

	t.Run("falls back on error", func(t *testing.T) {
		primary := ProviderFunc(func(ctx context.Context, req Request) (Pair, error) {
			return Pair{}, errors.New("down")
		})
		p, err := WithFallback(primary, fixed).GenerateTopics(context.Background(), Request{Category: "animals"})
		require.NoError(t, err)
		assert.Equal(t, Pair{"Sun", "Moon"}, p)
	})

	t.Run("falls back on unusable pair", func(t *testing.T) {
		primary := ProviderFunc(func(ctx context.Context, req Request) (Pair, error) {
			return Pair{"Lion", ""}, nil
		})
		p, err := Instrument("test", WithFallback(primary, fixed)).GenerateTopics(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, Pair{"Sun", "Moon"}, p)
	})
}

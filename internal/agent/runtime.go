// Package agent is the boundary to the reasoning runtime: it accepts a
// message sequence and produces streamed role-tagged output. The runtime is
// stateful; replaying a stored conversation primes it so subsequent turns
// continue the prior session.
package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/scoutd/scout/internal/config"
	"github.com/scoutd/scout/internal/logger"
)

// Turn is one role-tagged message handed across the boundary. Role "human"
// maps to the user role; anything else maps to the assistant role.
type Turn struct {
	Role    string
	Content string
}

// Runtime drives an OpenAI-compatible chat model while carrying the
// conversation history across turns.
type Runtime struct {
	client StreamClient
	cfg    config.LLMConfig

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

// NewRuntime creates a runtime backed by client. The configured system
// prompt, when present, is pinned as the first message of every session.
func NewRuntime(client StreamClient, cfg config.LLMConfig) *Runtime {
	r := &Runtime{client: client, cfg: cfg}
	r.reset()
	return r
}

func (r *Runtime) reset() {
	r.history = r.history[:0]
	if r.cfg.SystemPrompt != "" {
		r.history = append(r.history, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: r.cfg.SystemPrompt,
		})
	}
}

// Replay discards the current history and primes the runtime with turns, in
// order. It performs no model call.
func (r *Runtime) Replay(turns []Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
	for _, t := range turns {
		r.history = append(r.history, openai.ChatCompletionMessage{
			Role:    roleFor(t.Role),
			Content: t.Content,
		})
	}
	logger.L.Debug("runtime replayed history", "turns", len(turns))
}

// Send appends the user's text to the history, streams a completion, and
// returns the final settled content once the stream ends. onDelta, when
// non-nil, receives each content chunk as it arrives. Exactly one settled
// string is produced per call; on error the user turn is rolled off the
// history so a retry does not duplicate it.
func (r *Runtime) Send(ctx context.Context, text string, onDelta func(string)) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	stream, err := r.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    r.cfg.Model,
		Messages: r.history,
		Stream:   true,
	})
	if err != nil {
		r.history = r.history[:len(r.history)-1]
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.history = r.history[:len(r.history)-1]
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		b.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	final := b.String()
	r.history = append(r.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: final,
	})
	return final, nil
}

func roleFor(role string) string {
	if role == "human" {
		return openai.ChatMessageRoleUser
	}
	return openai.ChatMessageRoleAssistant
}

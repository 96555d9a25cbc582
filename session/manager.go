// Package session owns the rolling conversation state for one interaction:
// rebuilding the ordered message sequence from the persisted log, enforcing
// the token budget against the model's context window, and calling the model
// gateway. State never outlives a single request; the store is the only
// thing that crosses request boundaries.
package session

import (
	"context"
	"log"
	"strings"

	"github.com/talkerbot/talker/domain"
	"github.com/talkerbot/talker/llm"
)

// FallbackReply is the fixed user-visible text substituted when the model
// call fails for any reason.
const FallbackReply = "I cannot provide an answer right now. Please, try again later."

// budgetFraction is the share of a model's context window the stored log may
// occupy once a turn is persisted.
const budgetFraction = 0.8

// probeQuestion is the synthetic question used to verify a candidate model.
const probeQuestion = "Hello! Answer with one word."

// Gateway is the opaque model call. The production implementation is
// *llm.Client.
type Gateway interface {
	CreateChatCompletion(ctx context.Context, credential string, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error)
}

// Manager drives one interaction against the gateway.
type Manager struct {
	gateway Gateway
	limits  domain.ContextLimits
}

// NewManager creates a session manager with the given gateway and model
// context-limit table.
func NewManager(gateway Gateway, limits domain.ContextLimits) *Manager {
	return &Manager{gateway: gateway, limits: limits}
}

// Rebuild converts a persisted log into the ordered gateway message sequence.
// The system prompt is always pinned at index 0. Entries with an unrecognized
// author are skipped, not fatal.
func Rebuild(entries []domain.StoredMessage, systemPrompt string) []llm.ChatMessage {
	state := make([]llm.ChatMessage, 0, len(entries)+1)
	state = append(state, llm.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	for _, m := range entries {
		switch strings.ToLower(m.Author) {
		case domain.AuthorHuman:
			state = append(state, llm.ChatMessage{Role: domain.RoleUser, Content: m.Content})
		case domain.AuthorAI:
			state = append(state, llm.ChatMessage{Role: domain.RoleAssistant, Content: m.Content})
		default:
			log.Printf("WARN: skipping history entry with unknown author %q", m.Author)
		}
	}
	return state
}

// EnforceBudget returns the log trimmed so that the sum of recorded token
// counts fits within budgetFraction of the model's context window. Eviction
// is oldest-first and stops as soon as the remaining sum fits. Entries
// without a recorded token count contribute 0 to the running sum, so a log
// of untracked entries is never trimmed; the cap is an approximation, not a
// hard guarantee. Idempotent: a compliant log is returned unchanged.
func EnforceBudget(entries []domain.StoredMessage, limit int) []domain.StoredMessage {
	budget := int(float64(limit) * budgetFraction)
	total := tokenSum(entries)
	trimmed := entries
	for len(trimmed) > 0 && total > budget {
		total -= trimmed[0].Tokens
		trimmed = trimmed[1:]
	}
	return trimmed
}

// TokensForLatestTurn splits the gateway's usage report into the cost of the
// newest user message and the new assistant reply. A negative delta means the
// accounting is inconsistent; it is logged and clamped, never fatal.
func TokensForLatestTurn(usage domain.Usage, priorTotal int) (userTokens, aiTokens int) {
	userTokens = usage.PromptTokens - priorTotal
	aiTokens = usage.CompletionTokens
	if userTokens < 0 || aiTokens < 0 {
		log.Printf("WARN: inconsistent token accounting: prompt=%d prior=%d completion=%d",
			usage.PromptTokens, priorTotal, usage.CompletionTokens)
		userTokens = max(userTokens, 0)
		aiTokens = max(aiTokens, 0)
	}
	return userTokens, aiTokens
}

// Ask appends the utterance as a user message, invokes the gateway, and
// appends the reply. Gateway failures never propagate: the fallback reply is
// substituted with zero usage and the error is logged.
func (m *Manager) Ask(ctx context.Context, state []llm.ChatMessage, utterance string, cfg domain.UserConfig) ([]llm.ChatMessage, string, domain.Usage) {
	state = append(state, llm.ChatMessage{Role: domain.RoleUser, Content: utterance})

	temperature := cfg.Temperature
	resp, err := m.gateway.CreateChatCompletion(ctx, cfg.Token, &llm.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    state,
		Temperature: &temperature,
	})

	reply := FallbackReply
	var usage domain.Usage
	switch {
	case err != nil:
		log.Printf("ERROR: model call failed for user %s: %v", cfg.UserID, err)
	case len(resp.Choices) == 0 || resp.Choices[0].Message == nil:
		log.Printf("ERROR: model returned no choices for user %s", cfg.UserID)
	default:
		reply = resp.Choices[0].Message.Content
		if resp.Usage != nil {
			usage = domain.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
			}
		}
	}

	state = append(state, llm.ChatMessage{Role: domain.RoleAssistant, Content: reply})
	return state, reply, usage
}

// Probe sends the synthetic question to verify that a candidate model works
// with the user's credential before the configuration change is accepted.
func (m *Manager) Probe(ctx context.Context, cfg domain.UserConfig) error {
	temperature := cfg.Temperature
	_, err := m.gateway.CreateChatCompletion(ctx, cfg.Token, &llm.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    []llm.ChatMessage{{Role: domain.RoleUser, Content: probeQuestion}},
		Temperature: &temperature,
	})
	return err
}

// Result is the outcome of one interaction.
type Result struct {
	// Reply is the text to send back to the user. Always set.
	Reply string
	// Delta holds the new turn: the human entry with its attributed token
	// cost and the ai entry with the completion tokens.
	Delta []domain.StoredMessage
	// Log is the full budget-compliant log including the new turn.
	Log []domain.StoredMessage
	// Rewrite is true when eviction changed the stored log, so Log must
	// replace the history instead of Delta being appended.
	Rewrite bool
}

// Handle runs one full interaction: trim the log to budget, rebuild the
// ordered state, ask the gateway, and account the new turn. It never returns
// an error; every failure path yields a user-visible reply.
func (m *Manager) Handle(ctx context.Context, cfg domain.UserConfig, entries []domain.StoredMessage, utterance string) Result {
	limit := m.limits.Limit(cfg.Model)
	trimmed := EnforceBudget(entries, limit)

	state := Rebuild(trimmed, cfg.Prompt)
	_, reply, usage := m.Ask(ctx, state, utterance, cfg)

	// Zero usage means the gateway failed or reported nothing; the turn is
	// stored with no recorded cost rather than a bogus negative delta.
	var userTokens, aiTokens int
	if usage != (domain.Usage{}) {
		userTokens, aiTokens = TokensForLatestTurn(usage, tokenSum(trimmed))
	}

	delta := []domain.StoredMessage{
		{Author: domain.AuthorHuman, Content: utterance, Tokens: userTokens},
		{Author: domain.AuthorAI, Content: reply, Tokens: aiTokens},
	}

	combined := make([]domain.StoredMessage, 0, len(trimmed)+len(delta))
	combined = append(combined, trimmed...)
	combined = append(combined, delta...)
	final := EnforceBudget(combined, limit)

	return Result{
		Reply:   reply,
		Delta:   delta,
		Log:     final,
		Rewrite: len(final) != len(entries)+len(delta),
	}
}

func tokenSum(entries []domain.StoredMessage) int {
	total := 0
	for _, m := range entries {
		total += m.Tokens
	}
	return total
}

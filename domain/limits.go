package domain

// DefaultContextLimit is the context window assumed for models missing from
// the limits table.
const DefaultContextLimit = 4096

// ContextLimits maps model names to their maximum context window in tokens.
// Static, hand-maintained data injected at construction so the trimming logic
// never embeds model knowledge.
type ContextLimits map[string]int

// Limit returns the context window for a model, or DefaultContextLimit when
// the model is unknown.
func (l ContextLimits) Limit(model string) int {
	if limit, ok := l[model]; ok {
		return limit
	}
	return DefaultContextLimit
}

// DefaultLimits returns the built-in model context-limit table.
func DefaultLimits() ContextLimits {
	return ContextLimits{
		"gpt-4o":        128000,
		"gpt-4o-mini":   128000,
		"gpt-4-turbo":   128000,
		"gpt-4":         8192,
		"gpt-3.5-turbo": 16385,
	}
}

// Package domain defines the core data model for the talker service.
package domain

import "errors"

// Author values used in the persisted conversation log.
const (
	AuthorHuman = "human"
	AuthorAI    = "ai"
)

// Chat roles used on the model gateway wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StoredMessage is one entry of a user's persisted conversation log.
// Tokens is the cost attributed to this entry when it was stored; zero
// means the cost was never recorded.
type StoredMessage struct {
	Author  string `json:"author"`
	Content string `json:"content"`
	Tokens  int    `json:"tokens,omitempty"`
}

// Usage is the token accounting reported by the model gateway for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ErrMissingCredential indicates the user has no usable API credential
// configured. It is surfaced as an instruction, never retried.
var ErrMissingCredential = errors.New("no API credential configured")

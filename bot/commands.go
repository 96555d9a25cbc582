package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/talkerbot/talker/domain"
	"github.com/talkerbot/talker/telegram"
)

const (
	tokenInstruction   = "Please, enter a valid token using the /token command."
	internalErrorReply = "Something went wrong on my side. Please, try again."

	helpText = "If you want me to respond, please enter the /token command, followed by your OpenAI API token.\n\n" +
		"Commands:\n" +
		"/token <secret> — set your API token\n" +
		"/prompt [text] — reset my persona (default persona when omitted) and start fresh\n" +
		"/clear — clear the conversation\n" +
		"/temperature <0..2> — set how adventurous my answers are\n" +
		"/model <name> — switch the model (I test it first)\n" +
		"/erase — delete everything I know about you"
)

// dispatch routes one message to its command handler, or to free-text chat.
// Every path returns some user-visible text.
func (h *Handler) dispatch(ctx context.Context, msg *telegram.Message) string {
	text := strings.TrimSpace(msg.Text)
	userID := strconv.FormatInt(msg.From.ID, 10)

	if !strings.HasPrefix(text, "/") {
		return h.talk(ctx, userID, text)
	}

	cmd, args, _ := strings.Cut(text, " ")
	// Group chats address commands as /cmd@botname.
	cmd, _, _ = strings.Cut(cmd, "@")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/start":
		return fmt.Sprintf("Hi %s! I'm Talker. Please, enter the /token command, followed by your authentication token.", msg.From.FirstName)
	case "/help":
		return helpText
	case "/token":
		return h.setToken(ctx, userID, args)
	case "/prompt":
		return h.resetPrompt(ctx, userID, args)
	case "/clear":
		return h.clearHistory(ctx, userID)
	case "/temperature":
		return h.setTemperature(ctx, userID, args)
	case "/model":
		return h.setModel(ctx, userID, args)
	case "/erase":
		return h.eraseAll(ctx, userID)
	default:
		return "I don't know that command. Try /help."
	}
}

// setToken resets the user's configuration and stores the credential.
func (h *Handler) setToken(ctx context.Context, userID, token string) string {
	if token == "" {
		return tokenInstruction
	}
	if err := h.store.CreateConfig(ctx, userID); err != nil {
		log.Printf("ERROR: failed to create config for user %s: %v", userID, err)
		return internalErrorReply
	}
	var patch domain.ConfigOverrides
	patch.ApplyOverride("token", token)
	if err := h.store.UpdateConfig(ctx, userID, patch); err != nil {
		log.Printf("ERROR: failed to store token for user %s: %v", userID, err)
		return internalErrorReply
	}
	return "Alright, let's chat!"
}

// resetPrompt replaces the system prompt (default persona when no text is
// given) and clears the history.
func (h *Handler) resetPrompt(ctx context.Context, userID, prompt string) string {
	overrides, err := h.store.GetConfig(ctx, userID)
	if err != nil {
		log.Printf("ERROR: failed to load config for user %s: %v", userID, err)
		return internalErrorReply
	}
	if overrides == nil {
		return tokenInstruction
	}

	var patch domain.ConfigOverrides
	if prompt == "" {
		prompt = domain.DefaultPrompt
	}
	patch.ApplyOverride("prompt", prompt)
	if err := h.store.UpdateConfig(ctx, userID, patch); err != nil {
		log.Printf("ERROR: failed to store prompt for user %s: %v", userID, err)
		return internalErrorReply
	}
	if err := h.store.DeleteHistory(ctx, userID); err != nil {
		log.Printf("ERROR: failed to clear history for user %s: %v", userID, err)
		return internalErrorReply
	}
	return "Fresh start!"
}

// clearHistory wipes the conversation log but keeps the configuration.
func (h *Handler) clearHistory(ctx context.Context, userID string) string {
	if err := h.store.DeleteHistory(ctx, userID); err != nil {
		log.Printf("ERROR: failed to clear history for user %s: %v", userID, err)
		return internalErrorReply
	}
	return "Conversation cleared."
}

// setTemperature validates and stores a temperature override.
func (h *Handler) setTemperature(ctx context.Context, userID, value string) string {
	overrides, err := h.store.GetConfig(ctx, userID)
	if err != nil {
		log.Printf("ERROR: failed to load config for user %s: %v", userID, err)
		return internalErrorReply
	}
	if overrides == nil {
		return tokenInstruction
	}

	var patch domain.ConfigOverrides
	if !patch.ApplyOverride("temperature", value) {
		return "Temperature must be a number between 0 and 2."
	}
	if err := h.store.UpdateConfig(ctx, userID, patch); err != nil {
		log.Printf("ERROR: failed to store temperature for user %s: %v", userID, err)
		return internalErrorReply
	}
	return fmt.Sprintf("Temperature set to %s.", value)
}

// setModel probe-tests the candidate model with a synthetic question before
// accepting it. A model that fails the probe leaves the config unchanged.
func (h *Handler) setModel(ctx context.Context, userID, model string) string {
	if model == "" {
		return "Please, name the model: /model <name>."
	}
	overrides, err := h.store.GetConfig(ctx, userID)
	if err != nil {
		log.Printf("ERROR: failed to load config for user %s: %v", userID, err)
		return internalErrorReply
	}
	if overrides == nil || overrides.Token == "" {
		log.Printf("WARN: user %s: %v", userID, domain.ErrMissingCredential)
		return tokenInstruction
	}

	cfg := domain.ResolveUserConfig(userID, overrides)
	cfg.Model = model
	if err := h.sessions.Probe(ctx, cfg); err != nil {
		log.Printf("WARN: model probe failed for user %s, model %q: %v", userID, model, err)
		return fmt.Sprintf("I couldn't get an answer from %q, so I'll stick with the current model.", model)
	}

	var patch domain.ConfigOverrides
	patch.ApplyOverride("model", model)
	if err := h.store.UpdateConfig(ctx, userID, patch); err != nil {
		log.Printf("ERROR: failed to store model for user %s: %v", userID, err)
		return internalErrorReply
	}
	return fmt.Sprintf("Model set to %s.", model)
}

// eraseAll deletes the user's configuration and history.
func (h *Handler) eraseAll(ctx context.Context, userID string) string {
	if err := h.store.DeleteAll(ctx, userID); err != nil {
		log.Printf("ERROR: failed to erase data for user %s: %v", userID, err)
		return internalErrorReply
	}
	return "All your data is gone. Use /token whenever you want to chat again."
}

// talk runs one free-text interaction through the session manager and
// persists the resulting log mutation.
func (h *Handler) talk(ctx context.Context, userID, utterance string) string {
	overrides, err := h.store.GetConfig(ctx, userID)
	if err != nil {
		log.Printf("ERROR: failed to load config for user %s: %v", userID, err)
		return internalErrorReply
	}
	if overrides == nil || overrides.Token == "" {
		log.Printf("WARN: user %s: %v", userID, domain.ErrMissingCredential)
		return tokenInstruction
	}

	cfg := domain.ResolveUserConfig(userID, overrides)
	history, err := h.store.GetHistory(ctx, userID)
	if err != nil {
		log.Printf("ERROR: failed to load history for user %s: %v", userID, err)
		return internalErrorReply
	}

	result := h.sessions.Handle(ctx, cfg, history, utterance)

	// The reply is already decided; a failed write only loses the turn.
	if result.Rewrite {
		err = h.store.PutHistory(ctx, userID, result.Log, true)
	} else {
		err = h.store.PutHistory(ctx, userID, result.Delta, false)
	}
	if err != nil {
		log.Printf("ERROR: failed to persist history for user %s: %v", userID, err)
	}

	return result.Reply
}

package bot_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/talkerbot/talker/bot"
	"github.com/talkerbot/talker/domain"
	"github.com/talkerbot/talker/llm"
	"github.com/talkerbot/talker/session"
	"github.com/talkerbot/talker/store"
	"github.com/talkerbot/talker/telegram"
	"github.com/talkerbot/talker/tests/helpers"
)

type stubGateway struct {
	resp *llm.ChatCompletionResponse
	err  error
}

func (g *stubGateway) CreateChatCompletion(_ context.Context, _ string, _ *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return g.resp, g.err
}

type recordingSender struct {
	chatIDs []int64
	texts   []string
}

func (s *recordingSender) SendMessage(_ context.Context, chatID int64, text string) error {
	s.chatIDs = append(s.chatIDs, chatID)
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSender) lastText(t *testing.T) string {
	t.Helper()
	if len(s.texts) == 0 {
		t.Fatalf("expected at least one outbound message")
	}
	return s.texts[len(s.texts)-1]
}

func successResponse(content string, promptTokens, completionTokens int) *llm.ChatCompletionResponse {
	return &llm.ChatCompletionResponse{
		Model: "gpt-4o-mini",
		Choices: []llm.Choice{
			{Index: 0, Message: &llm.ChatMessage{Role: domain.RoleAssistant, Content: content}},
		},
		Usage: &llm.Usage{PromptTokens: promptTokens, CompletionTokens: completionTokens},
	}
}

func newTestBot(t *testing.T, gw session.Gateway) (*bot.Handler, *store.SQLiteStore, *recordingSender) {
	t.Helper()
	s := helpers.NewTestSQLiteStore(t)
	sender := &recordingSender{}
	sessions := session.NewManager(gw, domain.DefaultLimits())
	return bot.NewHandler(s, sessions, sender), s, sender
}

func sendText(t *testing.T, h *bot.Handler, userID int64, text string) {
	t.Helper()
	update := telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 1,
			From:      &telegram.User{ID: userID, FirstName: "Ana"},
			Chat:      telegram.Chat{ID: userID},
			Text:      text,
		},
	}
	body, err := json.Marshal(update)
	assert.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	assert.NoError(t, h.Webhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookMissingCredential(t *testing.T) {
	h, _, sender := newTestBot(t, &stubGateway{err: errors.New("unused")})

	sendText(t, h, 7, "hello there")

	assert.Equal(t, "Please, enter a valid token using the /token command.", sender.lastText(t))
	assert.Equal(t, []int64{7}, sender.chatIDs)
}

func TestWebhookTokenThenGatewayFailure(t *testing.T) {
	h, s, sender := newTestBot(t, &stubGateway{err: errors.New("rate limited")})

	sendText(t, h, 7, "/token sk-secret")
	assert.Equal(t, "Alright, let's chat!", sender.lastText(t))

	sendText(t, h, 7, "hello there")
	assert.Equal(t, session.FallbackReply, sender.lastText(t))

	// The failed turn is still persisted, with no recorded cost.
	history, err := s.GetHistory(context.Background(), "7")
	assert.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, domain.AuthorHuman, history[0].Author)
	assert.Equal(t, "hello there", history[0].Content)
	assert.Equal(t, domain.AuthorAI, history[1].Author)
	assert.Equal(t, session.FallbackReply, history[1].Content)
	assert.Zero(t, history[1].Tokens)
}

func TestWebhookTalkPersistsAccountedTurn(t *testing.T) {
	h, s, sender := newTestBot(t, &stubGateway{resp: successResponse("hola!", 12, 3)})

	sendText(t, h, 7, "/token sk-secret")
	sendText(t, h, 7, "say hi in spanish")

	assert.Equal(t, "hola!", sender.lastText(t))

	history, err := s.GetHistory(context.Background(), "7")
	assert.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, 12, history[0].Tokens)
	assert.Equal(t, 3, history[1].Tokens)
}

func TestTemperatureCommand(t *testing.T) {
	h, s, sender := newTestBot(t, &stubGateway{})

	sendText(t, h, 7, "/token sk-secret")

	sendText(t, h, 7, "/temperature 5.0")
	assert.Equal(t, "Temperature must be a number between 0 and 2.", sender.lastText(t))

	sendText(t, h, 7, "/temperature 1.2")
	assert.Equal(t, "Temperature set to 1.2.", sender.lastText(t))

	o, err := s.GetConfig(context.Background(), "7")
	assert.NoError(t, err)
	assert.NotNil(t, o.Temperature)
	assert.Equal(t, 1.2, *o.Temperature)
}

func TestModelProbeRejected(t *testing.T) {
	h, s, sender := newTestBot(t, &stubGateway{err: errors.New("no such model")})

	sendText(t, h, 7, "/token sk-secret")
	sendText(t, h, 7, "/model gpt-9")

	assert.Contains(t, sender.lastText(t), "stick with the current model")

	o, err := s.GetConfig(context.Background(), "7")
	assert.NoError(t, err)
	assert.Empty(t, o.Model)
}

func TestModelProbeAccepted(t *testing.T) {
	h, s, sender := newTestBot(t, &stubGateway{resp: successResponse("ok", 1, 1)})

	sendText(t, h, 7, "/token sk-secret")
	sendText(t, h, 7, "/model gpt-4")

	assert.Equal(t, "Model set to gpt-4.", sender.lastText(t))

	o, err := s.GetConfig(context.Background(), "7")
	assert.NoError(t, err)
	assert.Equal(t, "gpt-4", o.Model)
}

func TestPromptResetClearsHistory(t *testing.T) {
	h, s, sender := newTestBot(t, &stubGateway{resp: successResponse("hola!", 12, 3)})

	sendText(t, h, 7, "/token sk-secret")
	sendText(t, h, 7, "say hi")
	sendText(t, h, 7, "/prompt You always answer in haiku.")

	assert.Equal(t, "Fresh start!", sender.lastText(t))

	history, err := s.GetHistory(context.Background(), "7")
	assert.NoError(t, err)
	assert.Empty(t, history)

	o, err := s.GetConfig(context.Background(), "7")
	assert.NoError(t, err)
	assert.Equal(t, "You always answer in haiku.", o.Prompt)
}

func TestClearCommand(t *testing.T) {
	h, s, sender := newTestBot(t, &stubGateway{resp: successResponse("hola!", 12, 3)})

	sendText(t, h, 7, "/token sk-secret")
	sendText(t, h, 7, "say hi")
	sendText(t, h, 7, "/clear")

	assert.Equal(t, "Conversation cleared.", sender.lastText(t))

	history, err := s.GetHistory(context.Background(), "7")
	assert.NoError(t, err)
	assert.Empty(t, history)

	// Config survives a clear.
	o, err := s.GetConfig(context.Background(), "7")
	assert.NoError(t, err)
	assert.Equal(t, "sk-secret", o.Token)
}

func TestEraseCommand(t *testing.T) {
	h, s, sender := newTestBot(t, &stubGateway{resp: successResponse("hola!", 12, 3)})

	sendText(t, h, 7, "/token sk-secret")
	sendText(t, h, 7, "say hi")
	sendText(t, h, 7, "/erase")

	assert.Contains(t, sender.lastText(t), "All your data is gone")

	o, err := s.GetConfig(context.Background(), "7")
	assert.NoError(t, err)
	assert.Nil(t, o)

	history, err := s.GetHistory(context.Background(), "7")
	assert.NoError(t, err)
	assert.Empty(t, history)
}

func TestStartMentionsUser(t *testing.T) {
	h, _, sender := newTestBot(t, &stubGateway{})

	sendText(t, h, 7, "/start")

	assert.Contains(t, sender.lastText(t), "Hi Ana!")
}

func TestUnknownCommand(t *testing.T) {
	h, _, sender := newTestBot(t, &stubGateway{})

	sendText(t, h, 7, "/dance")

	assert.Contains(t, sender.lastText(t), "/help")
}

func TestWebhookIgnoresUpdatesWithoutText(t *testing.T) {
	h, _, sender := newTestBot(t, &stubGateway{})

	update := telegram.Update{UpdateID: 1}
	body, err := json.Marshal(update)
	assert.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	assert.NoError(t, h.Webhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sender.texts)
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestBot(t, &stubGateway{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	assert.NoError(t, h.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"studymate/internal/models"
	"studymate/internal/providers"
	"studymate/internal/vector"

	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	conversations map[string]models.Conversation
	messages      []models.Message
	events        []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{conversations: map[string]models.Conversation{}}
}

func (f *fakeLedger) CreateConversation(_ context.Context, c models.Conversation) error {
	f.conversations[c.ConversationID] = c
	f.events = append(f.events, "create_conversation")
	return nil
}

func (f *fakeLedger) GetConversation(_ context.Context, id, userID string) (models.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok || c.UserID != userID {
		return models.Conversation{}, fmt.Errorf("conversation %s: %w", id, errNotFound)
	}
	return c, nil
}

func (f *fakeLedger) TouchConversation(_ context.Context, id string) error {
	c := f.conversations[id]
	c.UpdatedAt = time.Now()
	f.conversations[id] = c
	return nil
}

func (f *fakeLedger) CreateMessage(_ context.Context, m models.Message) error {
	f.messages = append(f.messages, m)
	f.events = append(f.events, "append_"+string(m.Role))
	return nil
}

func (f *fakeLedger) ListRecentMessages(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	out := make([]models.Message, 0)
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if f.messages[i].ConversationID == conversationID {
			out = append(out, f.messages[i])
		}
	}
	return out, nil
}

var errNotFound = errors.New("not found")

type fakeStreaks struct {
	calls  []string
	events *[]string
}

func (f *fakeStreaks) UpdateStreak(_ context.Context, userID string) error {
	f.calls = append(f.calls, userID)
	if f.events != nil {
		*f.events = append(*f.events, "update_streak")
	}
	return nil
}

type fakeSelector struct {
	candidates []models.Candidate
	err        error
}

func (f *fakeSelector) SelectCandidates(context.Context, string, models.Principal) ([]models.Candidate, error) {
	return f.candidates, f.err
}

type scriptedLLM struct {
	text string
	err  error
	last providers.GenerateRequest
}

func (s *scriptedLLM) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	s.last = req
	if s.err != nil {
		return providers.GenerateResponse{}, providers.ProviderInfo{Name: "scripted"}, s.err
	}
	return providers.GenerateResponse{Text: s.text}, providers.ProviderInfo{Name: "scripted"}, nil
}

func newTestService(ledger *fakeLedger, streaks *fakeStreaks, sel *fakeSelector, llm *scriptedLLM) *Service {
	streaks.events = &ledger.events
	return NewService(ledger, ledger, sel, streaks, llm,
		providers.NewMockProvider(8), vector.NewStore(), time.Second)
}

func TestSendMessageNewConversationTitle(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(ledger, &fakeStreaks{}, &fakeSelector{}, &scriptedLLM{text: "answer"})

	content := "What is the capital of France and why does it matter for trade routes?"
	res, err := svc.SendMessage(context.Background(), models.Principal{ID: "u1"}, nil, content)
	require.NoError(t, err)
	require.Equal(t, content[:30]+"...", res.Conversation.Title)
	require.Len(t, res.Conversation.Title, 33)
}

func TestSendMessageAppendsBothTurns(t *testing.T) {
	ledger := newFakeLedger()
	streaks := &fakeStreaks{}
	llm := &scriptedLLM{text: "grounded answer"}
	svc := newTestService(ledger, streaks, &fakeSelector{candidates: []models.Candidate{
		{MaterialID: "m1", Title: "Bio 101", Content: "cells"},
	}}, llm)

	res, err := svc.SendMessage(context.Background(), models.Principal{ID: "u1"}, nil, "tell me about cells")
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, res.UserMessage.Role)
	require.Equal(t, "tell me about cells", res.UserMessage.Content)
	require.Equal(t, models.RoleAssistant, res.AssistantMessage.Role)
	require.Equal(t, "grounded answer", res.AssistantMessage.Content)
	require.Equal(t, []models.Source{{Title: "Bio 101", ID: "m1"}}, res.Sources)

	// The user turn is committed before generation, the streak before that
	// outcome is known.
	require.Equal(t,
		[]string{"create_conversation", "append_user", "update_streak", "append_assistant"},
		ledger.events)
	require.Equal(t, []string{"u1"}, streaks.calls)

	// The prompt carried the candidate excerpt.
	require.Contains(t, llm.last.System, "SOURCE: Bio 101")
	require.True(t, strings.HasSuffix(llm.last.Prompt, "Question: tell me about cells"))
}

func TestSendMessageFallbackOnGenerationFailure(t *testing.T) {
	ledger := newFakeLedger()
	streaks := &fakeStreaks{}
	svc := newTestService(ledger, streaks, &fakeSelector{candidates: []models.Candidate{
		{MaterialID: "m1", Title: "Bio 101"},
	}}, &scriptedLLM{err: errors.New("upstream 500")})

	res, err := svc.SendMessage(context.Background(), models.Principal{ID: "u1"}, nil, "anything at all")
	require.NoError(t, err, "generation failure must not surface")
	require.Equal(t, FallbackAnswer, res.AssistantMessage.Content)
	require.Empty(t, res.Sources)
	require.NotNil(t, res.Sources, "sources is empty, not absent")

	// Both turns persisted, streak still credited.
	require.Equal(t,
		[]string{"create_conversation", "append_user", "update_streak", "append_assistant"},
		ledger.events)
	require.Equal(t, []string{"u1"}, streaks.calls)
}

func TestSendMessageUnknownConversation(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(ledger, &fakeStreaks{}, &fakeSelector{}, &scriptedLLM{text: "x"})

	missing := "no-such-conversation"
	_, err := svc.SendMessage(context.Background(), models.Principal{ID: "u1"}, &missing, "hi there")
	require.ErrorIs(t, err, errNotFound)
	require.Empty(t, ledger.messages, "nothing is appended for a missing conversation")
}

func TestSendMessageForeignConversationIsNotFound(t *testing.T) {
	ledger := newFakeLedger()
	ledger.conversations["c1"] = models.Conversation{ConversationID: "c1", UserID: "owner"}
	svc := newTestService(ledger, &fakeStreaks{}, &fakeSelector{}, &scriptedLLM{text: "x"})

	id := "c1"
	_, err := svc.SendMessage(context.Background(), models.Principal{ID: "intruder"}, &id, "hi there")
	require.ErrorIs(t, err, errNotFound)
}

func TestSendMessageExistingConversationKeepsTitle(t *testing.T) {
	ledger := newFakeLedger()
	ledger.conversations["c1"] = models.Conversation{ConversationID: "c1", UserID: "u1", Title: "old title"}
	svc := newTestService(ledger, &fakeStreaks{}, &fakeSelector{}, &scriptedLLM{text: "x"})

	id := "c1"
	res, err := svc.SendMessage(context.Background(), models.Principal{ID: "u1"}, &id, "follow-up question")
	require.NoError(t, err)
	require.Equal(t, "old title", res.Conversation.Title)
}

func TestAskSemanticPath(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(ledger, &fakeStreaks{}, &fakeSelector{}, &scriptedLLM{text: "semantic answer"})

	// Index a document under the same embedder the service queries with.
	embedder := providers.NewMockProvider(8)
	vecs, _, err := embedder.Embed(context.Background(), providers.EmbedRequest{Inputs: []string{"photosynthesis notes"}})
	require.NoError(t, err)
	require.NoError(t, svc.index.AddDocument("m1",
		[]vector.Chunk{{ChunkID: "c0", Text: "photosynthesis notes", Meta: map[string]string{"title": "Bio"}}},
		vecs))

	res, err := svc.Ask(context.Background(), "photosynthesis notes")
	require.NoError(t, err)
	require.Equal(t, "semantic answer", res.Answer)
	require.Equal(t, []models.Source{{Title: "Bio", ID: "m1"}}, res.Sources)
	require.Len(t, res.Results, 1)
	require.InDelta(t, 1.0, res.Results[0].Score, 1e-6)
}

func TestTitleFor(t *testing.T) {
	require.Equal(t, "short...", TitleFor("short"))
	long := strings.Repeat("a", 40)
	require.Equal(t, strings.Repeat("a", 30)+"...", TitleFor(long))
}

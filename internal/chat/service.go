package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"studymate/internal/models"
	"studymate/internal/prompt"
	"studymate/internal/providers"
	"studymate/internal/retrieval"
	"studymate/internal/util"
	"studymate/internal/vector"

	"github.com/google/uuid"
)

// FallbackAnswer is returned verbatim whenever the upstream generation call
// fails. A broken model must never break the chat turn.
const FallbackAnswer = "I'm sorry, I encountered an error processing your request."

// TitleLength is how much of the first message becomes the conversation
// title, cut regardless of word boundaries.
const TitleLength = 30

// AskTopK bounds the semantic path's index query.
const AskTopK = 4

type ConversationStore interface {
	CreateConversation(ctx context.Context, c models.Conversation) error
	GetConversation(ctx context.Context, conversationID, userID string) (models.Conversation, error)
	TouchConversation(ctx context.Context, conversationID string) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, m models.Message) error
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

type StreakUpdater interface {
	UpdateStreak(ctx context.Context, userID string) error
}

type CandidateSelector interface {
	SelectCandidates(ctx context.Context, question string, p models.Principal) ([]models.Candidate, error)
}

// Service runs one question-answering turn: ledger appends around a
// retrieve-assemble-generate pipeline. It holds no per-request state.
type Service struct {
	conversations ConversationStore
	messages      MessageStore
	selector      CandidateSelector
	streaks       StreakUpdater
	llm           providers.LLMProvider
	embedder      providers.EmbeddingProvider
	index         *vector.Store
	genTimeout    time.Duration
}

func NewService(
	conversations ConversationStore,
	messages MessageStore,
	selector CandidateSelector,
	streaks StreakUpdater,
	llm providers.LLMProvider,
	embedder providers.EmbeddingProvider,
	index *vector.Store,
	genTimeout time.Duration,
) *Service {
	if genTimeout <= 0 {
		genTimeout = 60 * time.Second
	}
	return &Service{
		conversations: conversations,
		messages:      messages,
		selector:      selector,
		streaks:       streaks,
		llm:           llm,
		embedder:      embedder,
		index:         index,
		genTimeout:    genTimeout,
	}
}

type SendResult struct {
	Conversation     models.Conversation `json:"conversation"`
	UserMessage      models.Message      `json:"user_message"`
	AssistantMessage models.Message      `json:"assistant_message"`
	Sources          []models.Source     `json:"sources"`
}

// SendMessage appends the user's turn, credits the study streak, runs the
// retrieval pipeline and appends the assistant's turn. The assistant turn
// is written even when generation falls back, so failed generations stay
// visible in history. Appends already committed are never rolled back.
func (s *Service) SendMessage(ctx context.Context, p models.Principal, conversationID *string, content string) (SendResult, error) {
	var conversation models.Conversation
	if conversationID != nil {
		var err error
		conversation, err = s.conversations.GetConversation(ctx, *conversationID, p.ID)
		if err != nil {
			return SendResult{}, err
		}
	} else {
		conversation = models.Conversation{
			ConversationID: uuid.NewString(),
			UserID:         p.ID,
			Title:          TitleFor(content),
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		if err := s.conversations.CreateConversation(ctx, conversation); err != nil {
			return SendResult{}, fmt.Errorf("create conversation: %w", err)
		}
	}

	userMessage := models.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conversation.ConversationID,
		Role:           models.RoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := s.messages.CreateMessage(ctx, userMessage); err != nil {
		return SendResult{}, fmt.Errorf("append user message: %w", err)
	}

	// Credit for engaging, independent of what the generator does next.
	if err := s.streaks.UpdateStreak(ctx, p.ID); err != nil {
		return SendResult{}, fmt.Errorf("update streak: %w", err)
	}

	answer, sources, err := s.generateResponse(ctx, p, content, conversation.ConversationID)
	if err != nil {
		return SendResult{}, err
	}

	assistantMessage := models.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conversation.ConversationID,
		Role:           models.RoleAssistant,
		Content:        answer,
		CreatedAt:      time.Now(),
	}
	if err := s.messages.CreateMessage(ctx, assistantMessage); err != nil {
		return SendResult{}, fmt.Errorf("append assistant message: %w", err)
	}
	if err := s.conversations.TouchConversation(ctx, conversation.ConversationID); err != nil {
		log.Printf("touch conversation %s: %v", conversation.ConversationID, err)
	}

	return SendResult{
		Conversation:     conversation,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
		Sources:          sources,
	}, nil
}

// generateResponse is the lexical retrieval path. Selector and history
// errors propagate; only the upstream generation call is recovered, into
// the fixed fallback answer with no sources.
func (s *Service) generateResponse(ctx context.Context, p models.Principal, question, conversationID string) (string, []models.Source, error) {
	candidates, err := s.selector.SelectCandidates(ctx, question, p)
	if err != nil {
		return "", nil, fmt.Errorf("select candidates: %w", err)
	}
	recent, err := s.messages.ListRecentMessages(ctx, conversationID, prompt.HistoryWindow)
	if err != nil {
		return "", nil, fmt.Errorf("load recent history: %w", err)
	}
	payload := prompt.Assemble(candidates, recent, question)

	answer, ok := s.generate(ctx, "chat", payload)
	if !ok {
		return FallbackAnswer, []models.Source{}, nil
	}
	return answer, sourcesOf(candidates), nil
}

// AskResult is the semantic path's response; it does not touch the ledger.
type AskResult struct {
	Answer  string          `json:"answer"`
	Sources []models.Source `json:"sources"`
	Results []vector.Result `json:"results"`
}

// Ask answers a one-off question through the vector candidate index:
// embed, scan, assemble, generate. Same fail-soft generation policy as
// SendMessage.
func (s *Service) Ask(ctx context.Context, question string) (AskResult, error) {
	vecs, _, err := s.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "ask_query_embed",
		Inputs:    []string{question},
	})
	if err != nil || len(vecs) == 0 {
		return AskResult{}, fmt.Errorf("embed question: %w", err)
	}
	results := s.index.Query(vecs[0], AskTopK)

	candidates := make([]models.Candidate, 0, len(results))
	for _, r := range results {
		title := r.Chunk.Meta["title"]
		if title == "" {
			title = r.DocumentID
		}
		candidates = append(candidates, models.Candidate{
			MaterialID: r.DocumentID,
			Title:      title,
			Content:    r.Chunk.Text,
			Score:      r.Score,
		})
	}
	payload := prompt.Assemble(candidates, nil, question)

	answer, ok := s.generate(ctx, "ask", payload)
	if !ok {
		return AskResult{Answer: FallbackAnswer, Sources: []models.Source{}, Results: results}, nil
	}
	return AskResult{Answer: answer, Sources: sourcesOf(candidates), Results: results}, nil
}

// generate runs the bounded upstream call. It reports failure instead of
// returning an error; callers apply the fallback policy.
func (s *Service) generate(ctx context.Context, operation string, payload prompt.Payload) (string, bool) {
	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()
	resp, info, err := s.llm.Generate(genCtx, providers.GenerateRequest{
		Operation: operation,
		System:    payload.System,
		Prompt:    payload.User,
	})
	if err != nil {
		log.Printf("generation failed provider=%s model=%s class=%s: %v",
			info.Name, info.Model, providers.ClassifyError(err), err)
		return "", false
	}
	return resp.Text, true
}

func sourcesOf(candidates []models.Candidate) []models.Source {
	sources := make([]models.Source, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c.MaterialID] {
			continue
		}
		seen[c.MaterialID] = true
		sources = append(sources, models.Source{Title: c.Title, ID: c.MaterialID})
	}
	return sources
}

// TitleFor derives a new conversation's title from its first message.
func TitleFor(content string) string {
	return util.Excerpt(content, TitleLength)
}

var _ CandidateSelector = (*retrieval.Selector)(nil)

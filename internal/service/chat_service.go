package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/config"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/prompt"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/repository"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/llm"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
)

// FragmentSink receives answer fragments for delivery to the caller. A send
// failure means the caller is gone; the turn still runs to completion so the
// answer lands in history.
type FragmentSink interface {
	SendFragment(data []byte) error
}

// ChatResult reports what a finished turn produced.
type ChatResult struct {
	Session *model.Session
	// Assistant is the persisted assistant message: the generated answer, a
	// clarifying question, or an apology. Incomplete is set on the message
	// when the stream broke or was stopped partway.
	Assistant *model.Message
}

// ChatService runs one conversational turn end to end: persist the user
// message, retrieve passages, assemble the payload, stream the answer and
// persist the outcome.
type ChatService interface {
	// StreamAnswer processes one turn. stopRequested is polled between
	// fragments; once it reports true, generation is aborted and whatever was
	// produced so far is persisted as an incomplete answer. A nil sink or
	// stopRequested is valid.
	StreamAnswer(ctx context.Context, userID uint, sessionID, userText string, sink FragmentSink, stopRequested func() bool) (*ChatResult, error)
}

type chatService struct {
	sessions    SessionService
	messageRepo repository.MessageRepository
	retrieval   RetrievalService
	llmClient   llm.Client
	assembler   *prompt.Assembler
	ragCfg      config.RAGConfig

	// locks serializes turns per session. Distinct sessions proceed in
	// parallel; two turns on one session never interleave their history writes.
	locks sync.Map
}

// NewChatService creates a new ChatService instance.
func NewChatService(sessions SessionService, messageRepo repository.MessageRepository, retrieval RetrievalService, llmClient llm.Client, assembler *prompt.Assembler, ragCfg config.RAGConfig) ChatService {
	return &chatService{
		sessions:    sessions,
		messageRepo: messageRepo,
		retrieval:   retrieval,
		llmClient:   llmClient,
		assembler:   assembler,
		ragCfg:      ragCfg,
	}
}

func (s *chatService) lockSession(sessionID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *chatService) clarification() string {
	if s.ragCfg.Clarification != "" {
		return s.ragCfg.Clarification
	}
	return prompt.DefaultClarification
}

func (s *chatService) apology() string {
	if s.ragCfg.Apology != "" {
		return s.ragCfg.Apology
	}
	return prompt.DefaultApology
}

// StreamAnswer drives the turn through its stages. Leaf-service failures
// never surface to the caller as errors: they degrade into a persisted
// apology so the conversation record stays consistent.
func (s *chatService) StreamAnswer(ctx context.Context, userID uint, sessionID, userText string, sink FragmentSink, stopRequested func() bool) (*ChatResult, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, ErrEmptyPrompt
	}

	session, err := s.sessions.GetOrCreate(ctx, userID, sessionID, userText)
	if err != nil {
		return nil, err
	}

	mu := s.lockSession(session.ID)
	mu.Lock()
	defer mu.Unlock()

	// The user message is durable before any downstream call, so even a turn
	// that fails at the first stage leaves a complete record.
	userMsg := &model.Message{
		SessionID: session.ID,
		Role:      model.RoleUser,
		Kind:      model.KindChat,
		Content:   userText,
	}
	if err := s.messageRepo.Append(userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	log.Infow("[ChatService] retrieving", "session", session.ID)
	passages, err := s.retrieval.Retrieve(ctx, userText, s.ragCfg.TopK)
	if err != nil {
		log.Errorf("[ChatService] retrieval failed for session %s: %v", session.ID, err)
		return s.persistFallback(session, sink, s.apology())
	}

	if len(passages) == 0 && !s.ragCfg.AnswerWithoutContext {
		// Nothing relevant in the corpus: ask a clarifying question instead of
		// letting the model answer unsupported.
		log.Infow("[ChatService] clarifying, no passages matched", "session", session.ID)
		return s.persistFallback(session, sink, s.clarification())
	}

	log.Infow("[ChatService] assembling", "session", session.ID, "passages", len(passages))
	history := s.loadHistory(session.ID, userMsg.ID)
	payload := s.assembler.Build(passages, history, userText)

	if block := s.assembler.ContextBlock(passages); block != "" {
		// Record the injected context as its own history turn so an audit can
		// reconstruct exactly what the model saw.
		contextMsg := &model.Message{
			SessionID: session.ID,
			Role:      model.RoleUser,
			Kind:      model.KindContext,
			Content:   block,
		}
		if err := s.messageRepo.Append(contextMsg); err != nil {
			log.Warnf("[ChatService] failed to persist context turn for session %s: %v", session.ID, err)
		}
	}

	log.Infow("[ChatService] generating", "session", session.ID)
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	acc := &fragmentAccumulator{
		sink:          sink,
		stopRequested: stopRequested,
		cancel:        cancel,
	}
	genErr := s.llmClient.StreamChat(genCtx, payload, nil, acc)

	answer := acc.buf.String()
	if genErr != nil {
		if answer == "" && !acc.stopped {
			log.Errorf("[ChatService] generation failed before output for session %s: %v", session.ID, genErr)
			return s.persistFallback(session, sink, s.apology())
		}
		// Stream broke or was stopped partway; keep what the caller already saw.
		log.Warnf("[ChatService] generation aborted for session %s after %d bytes: %v", session.ID, len(answer), genErr)
		return s.persistAssistant(session, answer, true)
	}

	return s.persistAssistant(session, answer, false)
}

// loadHistory returns the prior ordinary turns for prompt assembly, excluding
// the just-persisted user message (the assembler appends it itself).
func (s *chatService) loadHistory(sessionID string, currentMsgID uint) []model.Message {
	turns := s.ragCfg.HistoryTurns
	recent, err := s.messageRepo.RecentChat(sessionID, turns+1)
	if err != nil {
		log.Warnf("[ChatService] failed to load history for session %s: %v", sessionID, err)
		return nil
	}
	history := make([]model.Message, 0, len(recent))
	for _, m := range recent {
		if m.ID == currentMsgID {
			continue
		}
		history = append(history, m)
	}
	if len(history) > turns {
		history = history[len(history)-turns:]
	}
	return history
}

// persistFallback sends a canned assistant reply to the caller and records it.
func (s *chatService) persistFallback(session *model.Session, sink FragmentSink, text string) (*ChatResult, error) {
	log.Infow("[ChatService] persisting", "session", session.ID)
	if sink != nil {
		if err := sink.SendFragment([]byte(text)); err != nil {
			log.Warnf("[ChatService] caller gone before fallback delivery for session %s", session.ID)
		}
	}
	return s.persistAssistant(session, text, false)
}

// persistAssistant appends the assistant message that closes the turn.
func (s *chatService) persistAssistant(session *model.Session, content string, incomplete bool) (*ChatResult, error) {
	log.Infow("[ChatService] persisting", "session", session.ID, "incomplete", incomplete)
	msg := &model.Message{
		SessionID:  session.ID,
		Role:       model.RoleAssistant,
		Kind:       model.KindChat,
		Content:    content,
		Incomplete: incomplete,
	}
	if err := s.messageRepo.Append(msg); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}
	return &ChatResult{Session: session, Assistant: msg}, nil
}

// fragmentAccumulator forwards fragments to the sink while buffering the full
// answer for persistence. It never propagates sink errors upstream: a gone
// caller must not abort generation, only delivery.
type fragmentAccumulator struct {
	sink          FragmentSink
	stopRequested func() bool
	cancel        context.CancelFunc
	buf           strings.Builder
	stopped       bool
	sinkBroken    bool
}

func (a *fragmentAccumulator) WriteFragment(data []byte) error {
	if a.stopped {
		return nil
	}
	if a.stopRequested != nil && a.stopRequested() {
		a.stopped = true
		a.cancel()
		return nil
	}
	a.buf.Write(data)
	if a.sink == nil || a.sinkBroken {
		return nil
	}
	if err := a.sink.SendFragment(data); err != nil {
		a.sinkBroken = true
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/config"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/prompt"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubSessions struct {
	SessionService
	session *model.Session
}

func (s *stubSessions) GetOrCreate(_ context.Context, userID uint, sessionID, _ string) (*model.Session, error) {
	if sessionID != "" && sessionID != s.session.ID {
		return nil, ErrSessionNotFound
	}
	return s.session, nil
}

// stubMessages is an in-memory MessageRepository. The busy flag trips when two
// appends overlap, which the per-session lock must prevent.
type stubMessages struct {
	mu         sync.Mutex
	messages   []*model.Message
	nextID     uint
	busy       atomic.Bool
	overlapped atomic.Bool
}

func (r *stubMessages) Append(m *model.Message) error {
	if !r.busy.CompareAndSwap(false, true) {
		r.overlapped.Store(true)
	}
	time.Sleep(time.Millisecond)
	r.busy.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	m.SentAt = time.Now()
	r.messages = append(r.messages, m)
	return nil
}

func (r *stubMessages) FindByID(id uint) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubMessages) ListBySessionBefore(sessionID string, before *model.Message, limit int, includeContext bool) ([]model.Message, error) {
	return nil, nil
}

func (r *stubMessages) RecentChat(sessionID string, n int) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Message
	for _, m := range r.messages {
		if m.SessionID == sessionID && m.Kind == model.KindChat {
			out = append(out, *m)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (r *stubMessages) all() []*model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.Message(nil), r.messages...)
}

type stubRetrieval struct {
	passages []model.RetrievedPassage
	err      error
	calls    atomic.Int32
}

func (s *stubRetrieval) Retrieve(_ context.Context, _ string, _ int) ([]model.RetrievedPassage, error) {
	s.calls.Add(1)
	return s.passages, s.err
}

// stubLLM replays canned fragments, honoring context cancellation between them.
type stubLLM struct {
	fragments []string
	err       error
	called    atomic.Bool
}

func (s *stubLLM) StreamChat(ctx context.Context, _ []llm.Message, _ *llm.GenerationParams, writer llm.FragmentWriter) error {
	s.called.Store(true)
	for _, f := range s.fragments {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := writer.WriteFragment([]byte(f)); err != nil {
			return err
		}
	}
	return s.err
}

func (s *stubLLM) Complete(_ context.Context, _ []llm.Message, _ *llm.GenerationParams) (string, error) {
	return "", errors.New("not implemented")
}

// collectSink records delivered fragments and can simulate a caller that
// disconnects partway.
type collectSink struct {
	mu        sync.Mutex
	fragments []string
	failAfter int // fail once this many fragments were accepted; 0 means never
}

func (s *collectSink) SendFragment(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.fragments) >= s.failAfter {
		return errors.New("connection closed")
	}
	s.fragments = append(s.fragments, string(data))
	return nil
}

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fragments)
}

func (s *collectSink) joined() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ""
	for _, f := range s.fragments {
		out += f
	}
	return out
}

func newTestChatService(messages *stubMessages, retrieval *stubRetrieval, gen *stubLLM) ChatService {
	sessions := &stubSessions{session: &model.Session{ID: "sess-1", UserID: 1}}
	return NewChatService(
		sessions,
		messages,
		retrieval,
		gen,
		prompt.NewAssembler("", ""),
		config.RAGConfig{TopK: 3, HistoryTurns: 10},
	)
}

func somePassages() []model.RetrievedPassage {
	return []model.RetrievedPassage{
		{ID: "doc_19", Score: 0.9, Text: "Article 19: Notice periods apply.", Category: "labor"},
	}
}

func TestStreamAnswerRejectsEmptyPrompt(t *testing.T) {
	messages := &stubMessages{}
	svc := newTestChatService(messages, &stubRetrieval{}, &stubLLM{})

	_, err := svc.StreamAnswer(context.Background(), 1, "", "   ", nil, nil)
	require.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Empty(t, messages.all())
}

func TestStreamAnswerClarifiesOnEmptyRetrieval(t *testing.T) {
	messages := &stubMessages{}
	gen := &stubLLM{fragments: []string{"should not run"}}
	svc := newTestChatService(messages, &stubRetrieval{}, gen)
	sink := &collectSink{}

	result, err := svc.StreamAnswer(context.Background(), 1, "", "Is this legal?", sink, nil)
	require.NoError(t, err)

	assert.False(t, gen.called.Load(), "generation must be skipped without passages")
	assert.Equal(t, prompt.DefaultClarification, result.Assistant.Content)
	assert.False(t, result.Assistant.Incomplete)
	assert.Equal(t, prompt.DefaultClarification, sink.joined())

	stored := messages.all()
	require.Len(t, stored, 2)
	assert.Equal(t, model.RoleUser, stored[0].Role)
	assert.Equal(t, "Is this legal?", stored[0].Content)
	assert.Equal(t, model.RoleAssistant, stored[1].Role)
}

func TestStreamAnswerHappyPath(t *testing.T) {
	messages := &stubMessages{}
	gen := &stubLLM{fragments: []string{"Artic", "le 19 applies to your case."}}
	svc := newTestChatService(messages, &stubRetrieval{passages: somePassages()}, gen)
	sink := &collectSink{}

	result, err := svc.StreamAnswer(context.Background(), 1, "", "I was dismissed", sink, nil)
	require.NoError(t, err)

	assert.Equal(t, "Article 19 applies to your case.", result.Assistant.Content)
	assert.False(t, result.Assistant.Incomplete)
	assert.Equal(t, "Article 19 applies to your case.", sink.joined())

	stored := messages.all()
	require.Len(t, stored, 3)
	assert.Equal(t, model.KindChat, stored[0].Kind)
	// The injected context is recorded as its own user-role turn.
	assert.Equal(t, model.KindContext, stored[1].Kind)
	assert.Equal(t, model.RoleUser, stored[1].Role)
	assert.Contains(t, stored[1].Content, "Article 19")
	assert.Equal(t, model.RoleAssistant, stored[2].Role)
}

func TestStreamAnswerPersistsPartialOnStreamBreak(t *testing.T) {
	messages := &stubMessages{}
	gen := &stubLLM{fragments: []string{"Artic", "le 19"}, err: errors.New("stream reset")}
	svc := newTestChatService(messages, &stubRetrieval{passages: somePassages()}, gen)
	sink := &collectSink{}

	result, err := svc.StreamAnswer(context.Background(), 1, "", "question", sink, nil)
	require.NoError(t, err)

	assert.Equal(t, "Article 19", result.Assistant.Content)
	assert.True(t, result.Assistant.Incomplete)
}

func TestStreamAnswerApologizesOnRetrievalFailure(t *testing.T) {
	messages := &stubMessages{}
	gen := &stubLLM{}
	svc := newTestChatService(messages, &stubRetrieval{err: errors.New("es down")}, gen)
	sink := &collectSink{}

	result, err := svc.StreamAnswer(context.Background(), 1, "", "question", sink, nil)
	require.NoError(t, err)

	assert.False(t, gen.called.Load())
	assert.Equal(t, prompt.DefaultApology, result.Assistant.Content)
	assert.False(t, result.Assistant.Incomplete)

	stored := messages.all()
	require.Len(t, stored, 2)
	// The user message went durable before the failing stage ran.
	assert.Equal(t, model.RoleUser, stored[0].Role)
}

func TestStreamAnswerApologizesWhenGenerationFailsBeforeOutput(t *testing.T) {
	messages := &stubMessages{}
	gen := &stubLLM{err: llm.ErrUnavailable}
	svc := newTestChatService(messages, &stubRetrieval{passages: somePassages()}, gen)

	result, err := svc.StreamAnswer(context.Background(), 1, "", "question", &collectSink{}, nil)
	require.NoError(t, err)
	assert.Equal(t, prompt.DefaultApology, result.Assistant.Content)
}

func TestStreamAnswerStopAbortsGeneration(t *testing.T) {
	messages := &stubMessages{}
	gen := &stubLLM{fragments: []string{"Artic", "le 19", " applies"}}
	svc := newTestChatService(messages, &stubRetrieval{passages: somePassages()}, gen)
	sink := &collectSink{}

	// Request the stop as soon as the first fragment has been delivered.
	stop := func() bool { return sink.count() >= 1 }

	result, err := svc.StreamAnswer(context.Background(), 1, "", "question", sink, stop)
	require.NoError(t, err)

	assert.Equal(t, "Artic", result.Assistant.Content)
	assert.True(t, result.Assistant.Incomplete)
}

func TestStreamAnswerDrainsAfterCallerDisconnect(t *testing.T) {
	messages := &stubMessages{}
	gen := &stubLLM{fragments: []string{"part one, ", "part two"}}
	svc := newTestChatService(messages, &stubRetrieval{passages: somePassages()}, gen)
	sink := &collectSink{failAfter: 1}

	result, err := svc.StreamAnswer(context.Background(), 1, "", "question", sink, nil)
	require.NoError(t, err)

	// Delivery stopped after one fragment but the full answer was persisted.
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, "part one, part two", result.Assistant.Content)
	assert.False(t, result.Assistant.Incomplete)
}

func TestStreamAnswerSerializesTurnsPerSession(t *testing.T) {
	messages := &stubMessages{}
	gen := &stubLLM{fragments: []string{"answer"}}
	svc := newTestChatService(messages, &stubRetrieval{passages: somePassages()}, gen)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StreamAnswer(context.Background(), 1, "sess-1", "concurrent question", &collectSink{}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, messages.overlapped.Load(), "appends of one session must never interleave")
	assert.Len(t, messages.all(), 12)
}

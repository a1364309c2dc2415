package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/model"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions []*model.Session
}

func (r *fakeSessionRepo) Create(s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().Add(time.Duration(len(r.sessions)) * time.Second)
	}
	r.sessions = append(r.sessions, s)
	return nil
}

func (r *fakeSessionRepo) FindByID(id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ID == id {
			copied := *s
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) ListByUserBefore(userID uint, before *model.Session, limit int) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Session
	for _, s := range r.sessions {
		if s.UserID != userID {
			continue
		}
		if before != nil {
			older := s.CreatedAt.Before(before.CreatedAt) ||
				(s.CreatedAt.Equal(before.CreatedAt) && s.ID < before.ID)
			if !older {
				continue
			}
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeSessionRepo) UpdateTitle(id, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ID == id {
			s.Title = title
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sessions {
		if s.ID == id {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) LatestByUser(userID uint) (*model.Session, error) {
	sessions, err := r.ListByUserBefore(userID, nil, 1)
	if err != nil || len(sessions) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &sessions[0], nil
}

// fakeMessageRepo mirrors the newest-first (sent_at, id) paging of the real
// repository.
type fakeMessageRepo struct {
	stubMessages
}

func (r *fakeMessageRepo) ListBySessionBefore(sessionID string, before *model.Message, limit int, includeContext bool) ([]model.Message, error) {
	var out []model.Message
	for _, m := range r.all() {
		if m.SessionID != sessionID {
			continue
		}
		if !includeContext && m.Kind == model.KindContext {
			continue
		}
		if before != nil {
			older := m.SentAt.Before(before.SentAt) ||
				(m.SentAt.Equal(before.SentAt) && m.ID < before.ID)
			if !older {
				continue
			}
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.After(out[j].SentAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeTitleLLM struct {
	title string
	err   error
}

func (f *fakeTitleLLM) StreamChat(_ context.Context, _ []llm.Message, _ *llm.GenerationParams, _ llm.FragmentWriter) error {
	return errors.New("not implemented")
}

func (f *fakeTitleLLM) Complete(_ context.Context, _ []llm.Message, _ *llm.GenerationParams) (string, error) {
	return f.title, f.err
}

func newTestSessionService(repo *fakeSessionRepo, msgs *fakeMessageRepo, gen llm.Client) *sessionService {
	if gen == nil {
		gen = &fakeTitleLLM{err: errors.New("unused")}
	}
	return NewSessionService(repo, msgs, gen).(*sessionService)
}

func seedSessions(repo *fakeSessionRepo, userID uint, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s := &model.Session{
			ID:        string(rune('a'+i)) + "-session",
			UserID:    userID,
			Title:     model.DefaultSessionTitle,
			CreatedAt: time.Unix(int64(1000+i), 0),
		}
		_ = repo.Create(s)
		ids = append(ids, s.ID)
	}
	return ids
}

func TestListPaginationWalksExactlyOnce(t *testing.T) {
	repo := &fakeSessionRepo{}
	ids := seedSessions(repo, 1, 5)
	svc := newTestSessionService(repo, &fakeMessageRepo{}, nil)

	var seen []string
	cursor := ""
	pages := 0
	for {
		sessions, next, err := svc.List(1, cursor, 2)
		require.NoError(t, err)
		for _, s := range sessions {
			seen = append(seen, s.ID)
		}
		pages++
		if next == "" {
			break
		}
		cursor = next
	}

	assert.Equal(t, 3, pages)
	// Newest first, every session exactly once.
	assert.Equal(t, []string{ids[4], ids[3], ids[2], ids[1], ids[0]}, seen)
}

func TestListRejectsInvalidLimit(t *testing.T) {
	svc := newTestSessionService(&fakeSessionRepo{}, &fakeMessageRepo{}, nil)

	_, _, err := svc.List(1, "", 0)
	assert.ErrorIs(t, err, ErrInvalidPagination)

	_, _, err = svc.List(1, "", maxPageSize+1)
	assert.ErrorIs(t, err, ErrInvalidPagination)
}

func TestListRejectsUnknownCursor(t *testing.T) {
	repo := &fakeSessionRepo{}
	seedSessions(repo, 1, 2)
	svc := newTestSessionService(repo, &fakeMessageRepo{}, nil)

	_, _, err := svc.List(1, "no-such-session", 10)
	assert.ErrorIs(t, err, ErrInvalidPagination)
}

func TestListRejectsForeignCursor(t *testing.T) {
	repo := &fakeSessionRepo{}
	seedSessions(repo, 1, 2)
	other := seedSessions(repo, 2, 1)
	svc := newTestSessionService(repo, &fakeMessageRepo{}, nil)

	_, _, err := svc.List(1, other[0], 10)
	assert.ErrorIs(t, err, ErrInvalidPagination)
}

func TestGetHidesForeignSessions(t *testing.T) {
	repo := &fakeSessionRepo{}
	ids := seedSessions(repo, 2, 1)
	svc := newTestSessionService(repo, &fakeMessageRepo{}, nil)

	_, err := svc.Get(1, ids[0])
	assert.ErrorIs(t, err, ErrSessionNotFound)

	session, err := svc.Get(2, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], session.ID)
}

func TestCreateStartsWithPlaceholderTitle(t *testing.T) {
	repo := &fakeSessionRepo{}
	svc := newTestSessionService(repo, &fakeMessageRepo{}, &fakeTitleLLM{err: errors.New("slow model")})

	session, err := svc.Create(context.Background(), 1, "my first question")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSessionTitle, session.Title)
	assert.NotEmpty(t, session.ID)
}

func TestGenerateTitleStoresTrimmedResult(t *testing.T) {
	repo := &fakeSessionRepo{}
	ids := seedSessions(repo, 1, 1)
	svc := newTestSessionService(repo, &fakeMessageRepo{}, &fakeTitleLLM{title: "  \"Unpaid Wages Claim\" \n"})

	svc.generateTitle(ids[0], "I have not been paid")

	stored, err := repo.FindByID(ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Unpaid Wages Claim", stored.Title)
}

func TestGenerateTitleKeepsPlaceholderOnFailure(t *testing.T) {
	repo := &fakeSessionRepo{}
	ids := seedSessions(repo, 1, 1)
	svc := newTestSessionService(repo, &fakeMessageRepo{}, &fakeTitleLLM{err: errors.New("timeout")})

	svc.generateTitle(ids[0], "question")

	stored, err := repo.FindByID(ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSessionTitle, stored.Title)
}

func TestRenameAndDelete(t *testing.T) {
	repo := &fakeSessionRepo{}
	ids := seedSessions(repo, 1, 1)
	svc := newTestSessionService(repo, &fakeMessageRepo{}, nil)

	require.NoError(t, svc.Rename(1, ids[0], "Custody dispute"))
	stored, err := repo.FindByID(ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Custody dispute", stored.Title)

	assert.ErrorIs(t, svc.Rename(2, ids[0], "x"), ErrSessionNotFound)

	require.NoError(t, svc.Delete(1, ids[0]))
	_, err = svc.Get(1, ids[0])
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func seedMessages(t *testing.T, msgs *fakeMessageRepo, sessionID string, n int) []*model.Message {
	t.Helper()
	out := make([]*model.Message, 0, n)
	for i := 0; i < n; i++ {
		kind := model.KindChat
		if i%3 == 2 {
			kind = model.KindContext
		}
		m := &model.Message{SessionID: sessionID, Role: model.RoleUser, Kind: kind, Content: "m"}
		require.NoError(t, msgs.Append(m))
		m.SentAt = time.Unix(int64(2000+i), 0)
		out = append(out, m)
	}
	return out
}

func TestHistoryFiltersContextTurns(t *testing.T) {
	repo := &fakeSessionRepo{}
	ids := seedSessions(repo, 1, 1)
	msgs := &fakeMessageRepo{}
	seedMessages(t, msgs, ids[0], 6)
	svc := newTestSessionService(repo, msgs, nil)

	visible, _, err := svc.History(1, ids[0], "", 50, false)
	require.NoError(t, err)
	assert.Len(t, visible, 4)
	for _, m := range visible {
		assert.Equal(t, model.KindChat, m.Kind)
	}

	audit, _, err := svc.History(1, ids[0], "", 50, true)
	require.NoError(t, err)
	assert.Len(t, audit, 6)
}

func TestHistoryPaginationWalk(t *testing.T) {
	repo := &fakeSessionRepo{}
	ids := seedSessions(repo, 1, 1)
	msgs := &fakeMessageRepo{}
	seeded := seedMessages(t, msgs, ids[0], 5)
	svc := newTestSessionService(repo, msgs, nil)

	var seen []uint
	cursor := ""
	for {
		page, next, err := svc.History(1, ids[0], cursor, 2, true)
		require.NoError(t, err)
		for _, m := range page {
			seen = append(seen, m.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	require.Len(t, seen, 5)
	// Newest first across pages.
	assert.Equal(t, seeded[4].ID, seen[0])
	assert.Equal(t, seeded[0].ID, seen[4])
}

func TestHistoryRejectsForeignCursor(t *testing.T) {
	repo := &fakeSessionRepo{}
	ids := seedSessions(repo, 1, 2)
	msgs := &fakeMessageRepo{}
	seedMessages(t, msgs, ids[0], 2)
	foreign := seedMessages(t, msgs, ids[1], 1)
	svc := newTestSessionService(repo, msgs, nil)

	_, _, err := svc.History(1, ids[0], "not-a-number", 10, false)
	assert.ErrorIs(t, err, ErrInvalidPagination)

	_, _, err = svc.History(1, ids[0], "99999", 10, false)
	assert.ErrorIs(t, err, ErrInvalidPagination)

	_, _, err = svc.History(1, ids[0], strconv.FormatUint(uint64(foreign[0].ID), 10), 10, false)
	assert.ErrorIs(t, err, ErrInvalidPagination)
}

package service

import "errors"

// Sentinel errors returned by services so handlers can map failures to
// response codes without string matching.
var (
	// ErrSessionNotFound covers both a missing session and a session owned by
	// another user; callers cannot distinguish the two.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidPagination reports a malformed cursor or limit.
	ErrInvalidPagination = errors.New("invalid pagination parameters")
	// ErrEmptyPrompt reports an empty or whitespace-only user prompt. Nothing
	// is persisted when it is returned.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
	// ErrInvalidCredentials reports a failed login without revealing whether
	// the username exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameTaken reports a registration against an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrRetrievalUnavailable reports that the similarity search store could
	// not serve the query.
	ErrRetrievalUnavailable = errors.New("retrieval service unavailable")
	// ErrDuplicateDocument reports an upload whose content hash already has an
	// indexed document.
	ErrDuplicateDocument = errors.New("document already ingested")
)

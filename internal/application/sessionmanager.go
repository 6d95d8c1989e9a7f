package application

import (
	"context"
	"log/slog"
	"sync"

	"github.com/reviewdeck/reviewdeck/internal/domain/model"
	"github.com/reviewdeck/reviewdeck/internal/domain/port/driven"
)

// SessionManager owns the single live ReviewSession. Selecting a different
// pull request or repository resets the previous session so any of its
// in-flight completions are discarded, then constructs a fresh one.
type SessionManager struct {
	reader driven.GitHubReader
	writer driven.GitHubWriter
	drafts *DraftService
	logger *slog.Logger

	mu      sync.Mutex
	current *ReviewSession
}

// NewSessionManager creates a SessionManager with the given collaborators.
func NewSessionManager(
	reader driven.GitHubReader,
	writer driven.GitHubWriter,
	drafts *DraftService,
	logger *slog.Logger,
) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		reader: reader,
		writer: writer,
		drafts: drafts,
		logger: logger,
	}
}

// Open returns the session for the given PR, creating and attaching one if
// the selection changed. An existing matching session is refetched so its
// state reconciles against current GitHub data.
func (m *SessionManager) Open(ctx context.Context, repo model.RepoRef, prNumber int, login string) (*ReviewSession, error) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current != nil && current.repo == repo && current.prNumber == prNumber && current.login == login {
		if err := current.Refetch(ctx); err != nil {
			return nil, err
		}
		return current, nil
	}

	if current != nil {
		current.Reset()
		m.logger.Debug("review session replaced",
			"old_repo", current.repo.FullName(),
			"old_pr", current.prNumber,
			"new_repo", repo.FullName(),
			"new_pr", prNumber,
		)
	}

	session := NewReviewSession(repo, prNumber, login, m.reader, m.writer, m.drafts, m.logger)
	if err := session.Attach(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = session
	m.mu.Unlock()
	return session, nil
}

// Current returns the live session when it matches the given PR selection.
func (m *SessionManager) Current(repo model.RepoRef, prNumber int) (*ReviewSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.repo != repo || m.current.prNumber != prNumber {
		return nil, false
	}
	return m.current, true
}

// Close resets and drops the live session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Reset()
		m.current = nil
	}
}

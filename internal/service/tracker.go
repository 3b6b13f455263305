package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-filing/internal/poller"
)

// Tracker owns the live poll sessions, at most one per local submission.
type Tracker struct {
	poller *poller.Poller
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[int64]*poller.Session
}

// NewTracker constructs a Tracker. Sessions outlive the request that started them and
// end when StopAll is called.
func NewTracker(p *poller.Poller, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		poller:   p,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: map[int64]*poller.Session{},
	}
}

// Start polls checker for submissionID, replacing any session already running for id.
func (t *Tracker) Start(id int64, submissionID string, checker poller.StatusChecker, onUpdate poller.UpdateFunc) *poller.Session {
	t.mu.Lock()
	if prev, ok := t.sessions[id]; ok {
		prev.Stop()
	}
	session := t.poller.Start(t.ctx, submissionID, checker, onUpdate)
	t.sessions[id] = session
	t.mu.Unlock()

	go t.forget(id, session)
	return session
}

func (t *Tracker) forget(id int64, session *poller.Session) {
	<-session.Done()
	t.mu.Lock()
	if t.sessions[id] == session {
		delete(t.sessions, id)
	}
	t.mu.Unlock()
	t.logger.Debug("poll session ended",
		zap.Int64("id", id),
		zap.String("reason", string(session.Reason())),
		zap.Int("polls", session.Polls()),
	)
}

// Session returns the running session for id.
func (t *Tracker) Session(id int64) (*poller.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Stop ends the session for id. It reports whether one was running.
func (t *Tracker) Stop(id int64) bool {
	t.mu.Lock()
	s, ok := t.sessions[id]
	delete(t.sessions, id)
	t.mu.Unlock()
	if ok {
		s.Stop()
	}
	return ok
}

// Active returns the number of running sessions.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// StopAll stops every session and waits for their goroutines to exit.
func (t *Tracker) StopAll(ctx context.Context) error {
	t.mu.Lock()
	sessions := make([]*poller.Session, 0, len(t.sessions))
	for id, s := range t.sessions {
		sessions = append(sessions, s)
		delete(t.sessions, id)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
	t.cancel()
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

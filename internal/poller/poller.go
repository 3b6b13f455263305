package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-filing/internal/domain/filing"
)

// StatusChecker is the slice of a form service the poller drives.
type StatusChecker interface {
	Path() string
	GetStatus(ctx context.Context, submissionID string) (filing.StatusResult, error)
}

// Config controls the polling cadence. Zero values take the defaults.
type Config struct {
	InitialInterval time.Duration
	LongInterval    time.Duration
	SwitchAfter     time.Duration
	MaxDuration     time.Duration
}

// DefaultConfig polls every 10s for the first 5 minutes, then every minute, for up to an hour.
func DefaultConfig() Config {
	return Config{
		InitialInterval: 10 * time.Second,
		LongInterval:    time.Minute,
		SwitchAfter:     5 * time.Minute,
		MaxDuration:     time.Hour,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = def.InitialInterval
	}
	if c.LongInterval <= 0 {
		c.LongInterval = def.LongInterval
	}
	if c.SwitchAfter <= 0 {
		c.SwitchAfter = def.SwitchAfter
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = def.MaxDuration
	}
	return c
}

// StopReason explains why a session ended.
type StopReason string

const (
	ReasonNone      StopReason = ""
	ReasonTerminal  StopReason = "terminal"
	ReasonDeadline  StopReason = "deadline"
	ReasonStopped   StopReason = "stopped"
	ReasonCancelled StopReason = "cancelled"
)

// UpdateFunc receives every successful observation, in order.
type UpdateFunc func(filing.StatusResult)

// Poller starts poll sessions sharing one configuration.
type Poller struct {
	cfg    Config
	clock  clockwork.Clock
	logger *zap.Logger
}

// Option customises a Poller.
type Option func(*Poller)

// WithClock injects the scheduling clock.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New constructs a Poller.
func New(cfg Config, opts ...Option) *Poller {
	p := &Poller{cfg: cfg.withDefaults(), clock: clockwork.NewRealClock(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Poller) Config() Config {
	return p.cfg
}

// Session is the handle of one running poll loop.
type Session struct {
	submissionID string
	formPath     string
	start        time.Time

	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	reason   StopReason
	interval time.Duration
	polls    int
}

// Start schedules the first poll after InitialInterval and returns immediately. Polls run
// one at a time on a dedicated goroutine. Errors from check are swallowed; onUpdate sees
// only successful observations. The session ends on an accepted/rejected acknowledgement,
// after MaxDuration, on Stop, or when ctx is cancelled.
func (p *Poller) Start(ctx context.Context, submissionID string, checker StatusChecker, onUpdate UpdateFunc) *Session {
	s := &Session{
		submissionID: submissionID,
		formPath:     checker.Path(),
		start:        p.clock.Now(),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
		interval:     p.cfg.InitialInterval,
	}
	if onUpdate == nil {
		onUpdate = func(filing.StatusResult) {}
	}
	go p.run(ctx, s, checker, onUpdate)
	return s
}

func (p *Poller) run(ctx context.Context, s *Session, checker StatusChecker, onUpdate UpdateFunc) {
	defer close(s.done)
	logger := p.logger.With(
		zap.String("submission_id", s.submissionID),
		zap.String("form", s.formPath),
	)

	for {
		timer := p.clock.NewTimer(s.currentInterval())
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			s.halt(ReasonCancelled)
			return
		case <-timer.Chan():
		}

		if s.stopped.Load() {
			return
		}

		result, err := checker.GetStatus(ctx, s.submissionID)
		s.countPoll()
		if err != nil {
			logger.Debug("status poll failed, continuing", zap.Error(err))
		} else {
			if s.stopped.Load() {
				return
			}
			onUpdate(result)
			if result.IsTerminal() {
				s.halt(ReasonTerminal)
				logger.Info("status poll reached terminal acknowledgement",
					zap.String("acknowledgement_status", result.AcknowledgementStatus),
				)
				return
			}
		}

		elapsed := p.clock.Since(s.start)
		if elapsed > p.cfg.MaxDuration {
			s.halt(ReasonDeadline)
			logger.Info("status poll gave up", zap.Duration("elapsed", elapsed))
			return
		}

		next := p.cfg.InitialInterval
		if elapsed > p.cfg.SwitchAfter {
			next = p.cfg.LongInterval
		}
		s.setInterval(next)
	}
}

// Stop ends the session. It is idempotent and takes effect before any further request,
// including one whose timer has already fired. A result whose request returns after Stop
// is dropped; one already being handed to onUpdate is not recalled.
func (s *Session) Stop() {
	s.halt(ReasonStopped)
}

func (s *Session) halt(reason StopReason) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		s.stopped.Store(true)
		close(s.stopCh)
	})
}

// Done is closed once the polling goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stopped reports whether the session will issue no further requests.
func (s *Session) Stopped() bool {
	return s.stopped.Load()
}

// Reason reports why the session stopped, or ReasonNone while it is running.
func (s *Session) Reason() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// SubmissionID returns the polled submission.
func (s *Session) SubmissionID() string { return s.submissionID }

// FormPath returns the form path segment being polled.
func (s *Session) FormPath() string { return s.formPath }

// StartedAt returns when the session began.
func (s *Session) StartedAt() time.Time { return s.start }

// Interval returns the delay before the next scheduled poll.
func (s *Session) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Polls returns how many status requests have been issued.
func (s *Session) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func (s *Session) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Session) setInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

func (s *Session) countPoll() {
	s.mu.Lock()
	s.polls++
	s.mu.Unlock()
}

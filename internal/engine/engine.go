// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mferraretto/chatshopee22/internal/browser"
	"github.com/mferraretto/chatshopee22/internal/decide"
	"github.com/mferraretto/chatshopee22/internal/dispatch"
	"github.com/mferraretto/chatshopee22/internal/extract"
	"github.com/mferraretto/chatshopee22/internal/scan"
	"github.com/mferraretto/chatshopee22/internal/types"
)

// Session is the slice of the browser session the engine drives.
// Implemented by browser.Session.
type Session interface {
	browser.Page
	Establish(ctx context.Context) error
	SubmitTwoFactorCode(ctx context.Context, code string) (bool, error)
	CloseModal(ctx context.Context) bool
	State() types.SessionState
	Selectors() browser.Selectors
	Close()
}

// SessionFactory builds a fresh session. Called on every (re-)establish.
type SessionFactory func(ctx context.Context) (Session, error)

// Recorder journals handled conversations. Implemented by
// state.SnapshotStore.
type Recorder interface {
	Record(conv *types.Conversation, dec types.ReplyDecision) error
}

// Notifier pushes operator alerts. Best effort; failures are logged only.
type Notifier interface {
	Notify(text string)
}

// Config bounds the outer loop and a scan cycle.
type Config struct {
	Idle             time.Duration
	MaxConversations int
	HistoryDepth     int
	ActionDelay      time.Duration
	NeedsReplyFilter bool
	Dispatch         dispatch.Options
	ThrottleWindow   time.Duration
	Backoff          *BackoffPolicy
}

// Status is the operator-visible engine state.
type Status struct {
	Running   bool               `json:"running"`
	Paused    bool               `json:"paused"`
	Session   types.SessionState `json:"session"`
	LastError string             `json:"last_error,omitempty"`
}

// Engine drives the whole automation: session lifecycle, scan cycles,
// decisions and dispatch. One goroutine owns the browser; every exported
// mutation funnels through explicit fields, never globals.
type Engine struct {
	cfg      Config
	factory  SessionFactory
	decider  *decide.Engine
	ledger   dispatch.Ledger
	recorder Recorder
	notifier Notifier
	log      *slog.Logger

	gate     *Gate
	throttle *dispatch.Throttle

	mu         sync.Mutex
	running    bool
	lastErr    error
	cancel     context.CancelFunc
	done       chan struct{}
	session    Session
	dispatcher *dispatch.Dispatcher
	lastConv   *types.Conversation
	proposed   string
}

func New(cfg Config, factory SessionFactory, decider *decide.Engine, ledger dispatch.Ledger, recorder Recorder, notifier Notifier, log *slog.Logger) *Engine {
	if cfg.Idle <= 0 {
		cfg.Idle = 3 * time.Second
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = 180 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoffPolicy()
	}
	return &Engine{
		cfg:      cfg,
		factory:  factory,
		decider:  decider,
		ledger:   ledger,
		recorder: recorder,
		notifier: notifier,
		log:      log,
		gate:     NewGate(),
		throttle: dispatch.NewThrottle(cfg.ThrottleWindow),
	}
}

// SetNotifier attaches the operator alert channel. The notifier needs a
// reference to the engine for its command loop, so it cannot be passed to
// New.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	e.notifier = n
	e.mu.Unlock()
}

// Start launches the outer loop. Returns an error if already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("engine already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		e.run(runCtx)
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.log.Info("engine started")
	return nil
}

// Stop cancels the outer loop and waits for the session teardown.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
	e.log.Info("engine stopped")
}

// RunOnce performs a single establish + cycle, for manual or scheduled use.
// It fails if the continuous loop is active.
func (e *Engine) RunOnce(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	err := e.withSession(ctx, func(s Session) error {
		return e.cycle(ctx, s)
	})
	e.setLastErr(err)
	return err
}

// run is the crash-safe outer loop: establish, cycle forever, tear down and
// back off on any fault. Only missing credentials stop it.
func (e *Engine) run(ctx context.Context) {
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := e.withSession(ctx, func(s Session) error {
			failures = 0
			for {
				if err := e.cycle(ctx, s); err != nil {
					return err
				}
				select {
				case <-time.After(e.cfg.Idle):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})

		if ctx.Err() != nil {
			return
		}
		e.setLastErr(err)

		if errors.Is(err, browser.ErrMissingCredentials) {
			e.log.Error("automation halted: credentials not configured")
			e.notify("Automação parada: credenciais do console não configuradas.")
			return
		}

		failures++
		delay := e.cfg.Backoff.NextDelay(failures)
		e.log.Warn("session fault, re-establishing", "error", err, "failures", failures, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// withSession runs fn with a freshly established session, guaranteeing
// teardown on every exit path.
func (e *Engine) withSession(ctx context.Context, fn func(Session) error) error {
	session, err := e.factory(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		e.mu.Lock()
		e.session = nil
		e.dispatcher = nil
		e.mu.Unlock()
		session.Close()
	}()

	dispatcher := dispatch.New(session, session.Selectors(), e.throttle, e.ledger, e.cfg.Dispatch, e.log)
	e.mu.Lock()
	e.session = session
	e.dispatcher = dispatcher
	e.mu.Unlock()

	runID := types.NewRunID()
	if err := session.Establish(ctx); err != nil {
		return err
	}
	e.log.Info("session established", "run", runID, "state", session.State())
	if session.State() == types.SessionAwaitingTwoFactor {
		if err := e.awaitTwoFactor(ctx, session); err != nil {
			return err
		}
	}
	return fn(session)
}

// awaitTwoFactor parks the loop until the operator submits a code. No
// scanning happens in this state.
func (e *Engine) awaitTwoFactor(ctx context.Context, s Session) error {
	e.log.Info("waiting for two-factor code")
	e.notify("Login precisa de código 2FA. Envie /code <código> ou use o painel.")
	for s.State() != types.SessionAuthenticated {
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.log.Info("two-factor verification completed")
	return nil
}

// cycle runs one pass over the conversation list.
func (e *Engine) cycle(ctx context.Context, s Session) error {
	ex := extract.New(s, s.Selectors(), e.log)
	sc := scan.New(s, s.Selectors(), ex, scan.Config{
		MaxConversations: e.cfg.MaxConversations,
		HistoryDepth:     e.cfg.HistoryDepth,
		ActionDelay:      e.cfg.ActionDelay,
		WaitReady:        e.gate.Wait,
	}, e.log)

	sc.ApplyFilter(ctx, e.cfg.NeedsReplyFilter)
	s.CloseModal(ctx)

	return sc.Cycle(ctx, func(ctx context.Context, conv *types.Conversation) error {
		return e.handle(ctx, s, conv)
	})
}

// handle decides and dispatches one conversation. Per-conversation faults
// are contained here; only transport-level errors propagate.
func (e *Engine) handle(ctx context.Context, s Session, conv *types.Conversation) error {
	if err := e.gate.Wait(ctx); err != nil {
		return err
	}

	dec := e.decider.Decide(ctx, conv.Timeline, conv.Timeline.BuyerOnly(), conv.OrderInfo)

	e.mu.Lock()
	e.lastConv = conv
	e.proposed = dec.Text
	e.mu.Unlock()

	if e.recorder != nil {
		if err := e.recorder.Record(conv, dec); err != nil {
			e.log.Warn("conversation journal write failed", "error", err)
		}
	}

	e.mu.Lock()
	dispatcher := e.dispatcher
	e.mu.Unlock()

	if err := dispatcher.Handle(ctx, conv, dec); err != nil {
		if errors.Is(err, dispatch.ErrNoInput) {
			return nil
		}
		return err
	}
	return nil
}

// Status reports the operator-visible state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Running: e.running,
		Paused:  e.gate.Closed(),
		Session: types.SessionUnauthenticated,
	}
	if e.session != nil {
		st.Session = e.session.State()
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}

// TakeControl pauses the automation before its next suspension point.
func (e *Engine) TakeControl() {
	e.gate.Close()
	e.log.Info("operator took control")
}

// ReleaseControl resumes the automation.
func (e *Engine) ReleaseControl() {
	e.gate.Open()
	e.log.Info("operator released control")
}

// SubmitTwoFactorCode forwards a verification code to the live session.
func (e *Engine) SubmitTwoFactorCode(ctx context.Context, code string) error {
	s := e.currentSession()
	if s == nil {
		return errors.New("no active session")
	}
	ok, err := s.SubmitTwoFactorCode(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("verification code rejected")
	}
	return nil
}

// SendManualReply types and submits operator text into the open
// conversation, bypassing decisions and throttling.
func (e *Engine) SendManualReply(ctx context.Context, text string) error {
	e.mu.Lock()
	d, conv := e.dispatcher, e.lastConv
	e.mu.Unlock()
	if d == nil {
		return errors.New("no active session")
	}

	if err := d.Send(ctx, text); err != nil {
		return fmt.Errorf("manual reply: %w", err)
	}
	if conv != nil {
		e.throttle.MarkReplied(conv.ID)
	}
	e.log.Info("manual reply sent")
	return nil
}

// Skip suppresses automated replies to the current conversation for one
// throttle window.
func (e *Engine) Skip() error {
	e.mu.Lock()
	conv := e.lastConv
	e.mu.Unlock()
	if conv == nil {
		return errors.New("no conversation open")
	}
	e.throttle.MarkReplied(conv.ID)
	e.log.Info("conversation skipped by operator", "conversation", conv.ID)
	return nil
}

// CloseModal dismisses an overlay on operator request.
func (e *Engine) CloseModal(ctx context.Context) error {
	s := e.currentSession()
	if s == nil {
		return errors.New("no active session")
	}
	if !s.CloseModal(ctx) {
		return errors.New("modal still visible")
	}
	return nil
}

// Snapshot captures the observational mirror for the UI: screenshot, last
// timeline and the proposed reply. Best effort on the screenshot.
func (e *Engine) Snapshot(ctx context.Context) types.Snapshot {
	e.mu.Lock()
	s, conv, proposed, running := e.session, e.lastConv, e.proposed, e.running
	e.mu.Unlock()

	snap := types.Snapshot{
		ProposedReply: proposed,
		Running:       running,
		TakenAt:       time.Now().UTC(),
	}
	if conv != nil {
		snap.Timeline = conv.Timeline
	}
	if s != nil {
		if img, err := s.Screenshot(ctx); err == nil {
			snap.ScreenImage = img
		}
	}
	return snap
}

func (e *Engine) currentSession() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *Engine) setLastErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

func (e *Engine) notify(text string) {
	e.mu.Lock()
	n := e.notifier
	e.mu.Unlock()
	if n != nil {
		n.Notify(text)
	}
}

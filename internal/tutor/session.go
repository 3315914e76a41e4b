// Package tutor runs submit cycles for a single tutoring session: it composes
// the mode's prompt against the session history, calls the model, splits the
// conversation review out of the reply, records the exchange and requests
// audio for the reply.
package tutor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ent0n29/tutor/internal/history"
	"github.com/ent0n29/tutor/internal/mode"
	"github.com/ent0n29/tutor/internal/prompt"
)

// Generator is the language-model capability. Calls block until the model
// answers and are attempted once.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Synthesizer turns text into a 16-bit PCM WAV payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Recorder receives every completed exchange. Recording is best effort and
// never feeds back into history.
type Recorder interface {
	Record(ctx context.Context, ex Exchange) error
}

// Observer is notified when a submit finishes.
type Observer interface {
	SubmitFinished(report Report)
}

// State is the position of a session inside a submit cycle.
type State string

const (
	StateIdle              State = "idle"
	StateComposing         State = "composing"
	StateAwaitingModel     State = "awaiting_model"
	StateSplitting         State = "splitting"
	StateAwaitingSynthesis State = "awaiting_synthesis"
)

// Progress maps a state to the 0..100 progress shown while a submit runs.
func (s State) Progress() int {
	switch s {
	case StateComposing:
		return 0
	case StateAwaitingModel:
		return 50
	case StateSplitting:
		return 75
	case StateAwaitingSynthesis:
		return 90
	default:
		return 100
	}
}

// Result is what a successful submit hands back to the UI.
type Result struct {
	Mode      mode.Mode
	Reply     string
	Review    string
	HasReview bool
	// Audio is a WAV payload for Reply, nil when the mode is silent or
	// synthesis failed.
	Audio []byte
	// AudioErr is a *SynthesisError when synthesis failed, or wraps
	// ErrEmptyReply when a speaking mode produced nothing before the review.
	AudioErr error
}

// Exchange is one completed question/answer pair as handed to a Recorder.
type Exchange struct {
	SessionID string
	Mode      mode.Mode
	Question  string
	Response  string
	Reply     string
	Review    string
	At        time.Time
}

// Outcome labels how a submit ended.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeModelError  Outcome = "model_error"
	OutcomeConfigError Outcome = "config_error"
)

// Report summarises one submit for metrics.
type Report struct {
	SessionID   string
	Mode        mode.Mode
	Outcome     Outcome
	Compose     time.Duration
	Model       time.Duration
	Synthesis   time.Duration
	Synthesized bool
	// ModelErr is the model failure behind OutcomeModelError.
	ModelErr error
	AudioErr error
	Total    time.Duration
}

// Options configures a Session. Model is required; the rest may be left zero.
type Options struct {
	ID           string
	Mode         mode.Mode
	HistoryLimit int
	Model        Generator
	Speech       Synthesizer
	Recorder     Recorder
	Observer     Observer
	Logger       *slog.Logger
}

// Session owns the history and current mode of one learner. Submits on a
// Session run strictly one at a time.
type Session struct {
	id       string
	model    Generator
	speech   Synthesizer
	recorder Recorder
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	busy atomic.Bool

	mu      sync.Mutex
	mode    mode.Mode
	history *history.Store
	state   State
}

func NewSession(opts Options) *Session {
	m := opts.Mode
	if m.Validate() != nil {
		m = mode.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:       opts.ID,
		model:    opts.Model,
		speech:   opts.Speech,
		recorder: opts.Recorder,
		observer: opts.Observer,
		logger:   logger.With("session_id", opts.ID),
		now:      time.Now,
		mode:     m,
		history:  history.NewStore(opts.HistoryLimit),
		state:    StateIdle,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Mode() mode.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the retained turns, oldest first.
func (s *Session) History() []history.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Turns()
}

// SetMode switches the active mode. Any change of mode or sub-option discards
// the history; setting the current mode again is a no-op.
func (s *Session) SetMode(m mode.Mode) (changed bool, err error) {
	if err := m.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == m {
		return false, nil
	}
	dropped := s.history.Len()
	s.mode = m
	s.history.Clear()
	s.logger.Info("mode changed", "mode", m.String(), "dropped_turns", dropped)
	return true, nil
}

// Reset discards the history without changing mode.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Clear()
}

// SubmitOption tunes a single Submit call.
type SubmitOption func(*submitConfig)

type submitConfig struct {
	onState func(State)
}

// OnState registers a callback invoked on every state transition of the call,
// ending with StateIdle.
func OnState(fn func(State)) SubmitOption {
	return func(c *submitConfig) { c.onState = fn }
}

// Submit runs one cycle for question in mode m. When m differs from the
// current mode the mode-change event runs first and history is cleared.
func (s *Session) Submit(ctx context.Context, question string, m mode.Mode, opts ...SubmitOption) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, ErrEmptyInput
	}
	if err := m.Validate(); err != nil {
		return Result{}, err
	}
	if !s.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer s.busy.Store(false)

	var cfg submitConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	defer s.transition(StateIdle, cfg.onState)

	if _, err := s.SetMode(m); err != nil {
		return Result{}, err
	}

	started := s.now()
	report := Report{SessionID: s.id, Mode: m}
	defer func() {
		report.Total = s.now().Sub(started)
		if s.observer != nil {
			s.observer.SubmitFinished(report)
		}
	}()

	s.transition(StateComposing, cfg.onState)
	composed, err := s.compose(m, question)
	if err != nil {
		report.Outcome = OutcomeConfigError
		s.logger.Error("compose prompt failed", "mode", m.String(), "error", err)
		return Result{}, err
	}
	report.Compose = s.now().Sub(started)

	s.transition(StateAwaitingModel, cfg.onState)
	modelStart := s.now()
	raw, err := s.model.Generate(ctx, composed)
	report.Model = s.now().Sub(modelStart)
	if err == nil && strings.TrimSpace(raw) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		report.Outcome = OutcomeModelError
		report.ModelErr = err
		s.logger.Error("model call failed", "mode", m.String(), "error", err)
		return Result{}, &ModelError{Err: err}
	}

	res := Result{Mode: m}
	if m.SplitsReview() {
		s.transition(StateSplitting, cfg.onState)
		res.Reply, res.Review, res.HasReview = prompt.Split(raw)
	} else {
		res.Reply = strings.TrimSpace(raw)
	}

	s.appendExchange(m, question, raw)

	if m.Speaks() && s.speech != nil {
		if res.Reply == "" {
			res.AudioErr = &SynthesisError{Err: ErrEmptyReply}
			report.AudioErr = res.AudioErr
		} else {
			s.transition(StateAwaitingSynthesis, cfg.onState)
			synthStart := s.now()
			res.Audio, res.AudioErr = s.synthesize(ctx, res.Reply)
			report.Synthesis = s.now().Sub(synthStart)
			report.Synthesized = true
			report.AudioErr = res.AudioErr
		}
	}

	s.record(ctx, Exchange{
		SessionID: s.id,
		Mode:      m,
		Question:  question,
		Response:  raw,
		Reply:     res.Reply,
		Review:    res.Review,
		At:        s.now().UTC(),
	})

	report.Outcome = OutcomeOK
	s.logger.Info("submit completed",
		"mode", m.String(),
		"has_review", res.HasReview,
		"audio_bytes", len(res.Audio),
		"model_ms", report.Model.Milliseconds(),
	)
	return res, nil
}

func (s *Session) compose(m mode.Mode, question string) (string, error) {
	tmpl, err := mode.Template(m)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	serialized := s.history.Serialize()
	s.mu.Unlock()
	return prompt.Compose(tmpl, serialized, question)
}

// appendExchange stores the raw, unsplit response so later prompts see the
// review too. If the mode changed while the model was answering, the
// exchange belongs to the old mode and is dropped.
func (s *Session) appendExchange(m mode.Mode, question, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != m {
		s.logger.Warn("mode changed during submit, exchange not kept in history", "mode", m.String())
		return
	}
	s.history.Append(
		history.Turn{Speaker: history.Human, Text: question},
		history.Turn{Speaker: history.Assistant, Text: raw},
	)
}

func (s *Session) synthesize(ctx context.Context, text string) ([]byte, error) {
	audio, err := s.speech.Synthesize(ctx, text)
	if err == nil && len(audio) == 0 {
		err = ErrEmptyAudio
	}
	if err != nil {
		s.logger.Warn("speech synthesis failed, returning text only", "error", err)
		return nil, &SynthesisError{Err: err}
	}
	return audio, nil
}

func (s *Session) record(ctx context.Context, ex Exchange) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, ex); err != nil {
		s.logger.Warn("transcript record failed", "error", err)
	}
}

func (s *Session) transition(st State, onState func(State)) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if onState != nil {
		onState(st)
	}
}

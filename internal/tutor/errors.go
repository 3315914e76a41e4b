package tutor

import "errors"

var (
	// ErrEmptyInput rejects blank questions before any backend is called.
	ErrEmptyInput = errors.New("question is empty")
	// ErrBusy rejects a submit while another one is in flight on the same session.
	ErrBusy = errors.New("a submit is already in progress for this session")
	// ErrEmptyResponse marks a model reply with no usable text.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrEmptyAudio marks a synthesis call that produced no audio.
	ErrEmptyAudio = errors.New("synthesizer returned no audio")
	// ErrEmptyReply marks a speaking-mode response whose reply part is empty,
	// typically because it opened with the review marker.
	ErrEmptyReply = errors.New("reply has no text to speak")
)

// ModelError wraps any failure of the model backend. A submit that fails with
// a ModelError leaves the session history untouched.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string { return "model backend: " + e.Err.Error() }

func (e *ModelError) Unwrap() error { return e.Err }

// SynthesisError wraps a failure of the speech backend. It never aborts a
// submit; it is reported through Result.AudioErr.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return "speech backend: " + e.Err.Error() }

func (e *SynthesisError) Unwrap() error { return e.Err }

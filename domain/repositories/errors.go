package repositories

import "fmt"

// TranscriptionError is a recoverable per-turn failure: the caller is told
// to repeat themselves and the session keeps going. The turn counter does
// not advance.
type TranscriptionError struct {
	// Stage names where the round-trip failed: upload, submit, poll or
	// timeout.
	Stage string
	Err   error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed at %s: %v", e.Stage, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// GenerationError ends the session. There is no usable reply text without
// another model call, and retries are not made.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("reply generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// SynthesisError leaves the session running: the turn's text has already
// been delivered when synthesis fails, so the caller simply gets no audio.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// ProtocolError is a caller-side violation of the wire contract. The
// connection is closed immediately.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

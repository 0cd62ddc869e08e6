package repositories

import "context"

// SpeechSynthesizer abstracts the streaming text-to-speech collaborator.
//
// SynthesizeStream opens a fresh connection per invocation, pushes the text
// and yields decoded audio chunks in arrival order. The returned channel is
// always closed after a finite number of chunks: on the service's final
// flag, on a transport error, or on context cancellation. A stream that
// ends early is how a *SynthesisError surfaces mid-stream; callers observe
// fewer chunks and move on.
type SpeechSynthesizer interface {
	SynthesizeStream(ctx context.Context, text string) (<-chan []byte, error)
}

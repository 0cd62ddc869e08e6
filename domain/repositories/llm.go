package repositories

import (
	"context"

	"github.com/lifelongcx/voiceagent/domain/entities"
)

// ReplyGenerator abstracts the language-model collaborator. Exactly one
// model call is made per invocation; there are no retries and no
// speculative parallel calls. Any failure is a *GenerationError.
type ReplyGenerator interface {
	// Generate produces the agent's next line. The system instruction and
	// the full untruncated history are passed on every call.
	Generate(ctx context.Context, system string, history []entities.Turn, input string) (string, error)
}

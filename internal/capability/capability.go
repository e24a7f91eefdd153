// Package capability describes the remote provider the engine depends on.
package capability

import (
	"context"
	"errors"
	"iter"

	"vaultx/internal/domain"
)

// ErrCredentialRequired marks provider failures caused by a missing or
// unentitled API key. Adapters wrap it so callers can prompt for a new key.
var ErrCredentialRequired = errors.New("capability: credential required")

// SpellcheckResult is the provider's view of a prompt.
type SpellcheckResult struct {
	CorrectedText string
	NoChange      bool
}

// Artifact is one media payload returned by a generation call.
type Artifact struct {
	Data     []byte
	MIMEType string
}

// JobHandle references a long-running provider job.
type JobHandle struct {
	ID string
}

// JobStatus is a single poll observation.
type JobStatus struct {
	Done    bool
	Locator string
}

// Turn is a prior transcript message reduced to role and text.
type Turn struct {
	Role domain.Role
	Text string
}

// TurnInput is the current user turn.
type TurnInput struct {
	Text       string
	Attachment *domain.Media
}

// TierConfig selects the chat model class and reasoning mode for one turn.
type TierConfig struct {
	Tier     domain.ModelTier
	Thinking bool
}

type Spellchecker interface {
	Spellcheck(ctx context.Context, text string) (SpellcheckResult, error)
}

// ImageGenerator produces still images. Implementations return every artifact
// the provider produced; callers enforce the single-artifact contract.
type ImageGenerator interface {
	CreateImage(ctx context.Context, prompt string, aspect domain.AspectRatio) ([]Artifact, error)
	EditImage(ctx context.Context, source domain.Media, prompt string) ([]Artifact, error)
}

type VideoGenerator interface {
	CreateVideoJob(ctx context.Context, prompt string, aspect domain.AspectRatio, source *domain.Media) (JobHandle, error)
	PollVideoJob(ctx context.Context, job JobHandle) (JobStatus, error)
	FetchMedia(ctx context.Context, locator string) (Artifact, error)
}

// ChatStreamer yields incremental text fragments for one assistant turn. The
// sequence is finite and cannot be restarted.
type ChatStreamer interface {
	StreamChat(ctx context.Context, transcript []Turn, input TurnInput, tier TierConfig) iter.Seq2[string, error]
}

// Client is the full remote capability surface.
type Client interface {
	Spellchecker
	ImageGenerator
	VideoGenerator
	ChatStreamer
}

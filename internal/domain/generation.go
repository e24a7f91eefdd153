package domain

import (
	"fmt"
	"strings"
	"time"
)

// Surface identifies an independent generation context with its own state machine.
type Surface string

const (
	SurfaceImage Surface = "image"
	SurfaceVideo Surface = "video"
	SurfaceChat  Surface = "chat"
)

// ParseSurface sanitizes free-form input into a known surface.
func ParseSurface(raw string) (Surface, error) {
	switch Surface(strings.ToLower(strings.TrimSpace(raw))) {
	case SurfaceImage:
		return SurfaceImage, nil
	case SurfaceVideo:
		return SurfaceVideo, nil
	case SurfaceChat:
		return SurfaceChat, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSurface, raw)
	}
}

// RequestKind enumerates supported generation strategies.
type RequestKind string

const (
	KindImageCreate RequestKind = "image_create"
	KindImageEdit   RequestKind = "image_edit"
	KindVideoCreate RequestKind = "video_create"
)

// Surface returns the surface that owns requests of this kind.
func (k RequestKind) Surface() Surface {
	if k == KindVideoCreate {
		return SurfaceVideo
	}
	return SurfaceImage
}

// MediaKind distinguishes still images from videos.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// AspectRatio is the requested output frame shape.
type AspectRatio string

const (
	Aspect1x1  AspectRatio = "1:1"
	Aspect16x9 AspectRatio = "16:9"
	Aspect9x16 AspectRatio = "9:16"
	Aspect3x4  AspectRatio = "3:4"
	Aspect4x3  AspectRatio = "4:3"
)

var (
	imageAspectRatios = []AspectRatio{Aspect1x1, Aspect16x9, Aspect9x16, Aspect3x4, Aspect4x3}
	videoAspectRatios = []AspectRatio{Aspect16x9, Aspect9x16}
)

// AspectRatios lists the ratios accepted for a request kind, default first.
func AspectRatios(kind RequestKind) []AspectRatio {
	if kind == KindVideoCreate {
		return append([]AspectRatio(nil), videoAspectRatios...)
	}
	return append([]AspectRatio(nil), imageAspectRatios...)
}

// NormalizeAspectRatio returns the default ratio for empty input and validates
// everything else against the ratios supported by kind.
func NormalizeAspectRatio(kind RequestKind, raw string) (AspectRatio, error) {
	allowed := AspectRatios(kind)
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return allowed[0], nil
	}
	for _, ratio := range allowed {
		if string(ratio) == trimmed {
			return ratio, nil
		}
	}
	return "", NewError(ErrorKindValidation, fmt.Sprintf("aspect ratio %q is not supported for %s", trimmed, kind), nil)
}

// Style ids assigned to results that are not produced from a catalog style.
const (
	StyleIDCustomEdit = "custom-edit"
	StyleIDVideo      = "video"
)

// GenerationRequest is constructed once at dispatch time and passed by value.
type GenerationRequest struct {
	Kind          RequestKind
	Prompt        string
	StyleID       string
	StyleModifier string
	AspectRatio   AspectRatio
	SourceMedia   *Media
}

// Validate enforces the submit preconditions. A failing request must never reach
// a provider.
func (r GenerationRequest) Validate() error {
	switch r.Kind {
	case KindImageCreate, KindImageEdit, KindVideoCreate:
	default:
		return NewError(ErrorKindValidation, fmt.Sprintf("unsupported request kind %q", r.Kind), nil)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return NewError(ErrorKindValidation, "prompt is required", nil)
	}
	if r.Kind == KindImageEdit && r.SourceMedia.IsZero() {
		return NewError(ErrorKindValidation, "source image is required for edits", nil)
	}
	if _, err := NormalizeAspectRatio(r.Kind, string(r.AspectRatio)); err != nil {
		return err
	}
	return nil
}

// WithPrompt returns a copy carrying the resolved prompt.
func (r GenerationRequest) WithPrompt(prompt string) GenerationRequest {
	r.Prompt = prompt
	return r
}

// ComposedPrompt is the text sent to the provider for the request kind.
func (r GenerationRequest) ComposedPrompt() string {
	if r.Kind == KindImageCreate {
		return r.Prompt + ". " + r.StyleModifier
	}
	return r.Prompt
}

// GenerationResult is a single successful artifact. It is immutable once
// created and owned by the history afterwards.
type GenerationResult struct {
	ID            string
	MediaURL      string
	DisplayPrompt string
	StyleID       string
	CreatedAt     time.Time
	AspectRatio   AspectRatio
	MediaKind     MediaKind
}

// SpellingSuggestion exists only between a detected mismatch and the user's
// decision. It is never persisted.
type SpellingSuggestion struct {
	Original  string
	Corrected string
}

// Decision resolves a pending spelling suggestion.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// ParseDecision accepts the wire aliases used by the HTTP and CLI layers.
func ParseDecision(raw string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accept", "confirm", "yes", "y":
		return DecisionAccept, nil
	case "reject", "keep", "no", "n":
		return DecisionReject, nil
	default:
		return "", NewError(ErrorKindValidation, fmt.Sprintf("unknown decision %q", raw), nil)
	}
}

// Validate rejects anything other than accept or reject.
func (d Decision) Validate() error {
	switch d {
	case DecisionAccept, DecisionReject:
		return nil
	}
	return NewError(ErrorKindValidation, fmt.Sprintf("unknown decision %q", string(d)), nil)
}

// Apply picks the prompt the decision resumes with.
func (d Decision) Apply(s SpellingSuggestion) string {
	if d == DecisionAccept {
		return s.Corrected
	}
	return s.Original
}

package domain

import (
	"strings"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ModelTier selects the chat model class.
type ModelTier string

const (
	TierFast  ModelTier = "fast"
	TierSmart ModelTier = "smart"
)

// ParseModelTier also accepts the model family names flash and pro.
func ParseModelTier(raw string) (ModelTier, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "fast", "flash":
		return TierFast, nil
	case "smart", "pro":
		return TierSmart, nil
	default:
		return "", NewError(ErrorKindValidation, "tier must be fast or smart", nil)
	}
}

// Attachment references media shown alongside a chat message.
type Attachment struct {
	Kind     MediaKind
	MediaURL string
}

// ChatMessage is mutable only while it is an in-flight assistant reply;
// Finalized marks the end of its stream.
type ChatMessage struct {
	ID             string
	Role           Role
	Text           string
	CreatedAt      time.Time
	Attachments    []Attachment
	IsThinkingMode bool
	Finalized      bool
}

// Clone returns a copy that does not share the attachment slice.
func (m ChatMessage) Clone() ChatMessage {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return m
}

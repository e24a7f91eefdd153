package handlers

import (
	"vaultx/internal/chat"
	"vaultx/internal/domain"
)

type resultDTO struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Prompt      string `json:"prompt"`
	StyleID     string `json:"styleId"`
	Timestamp   int64  `json:"timestamp"`
	AspectRatio string `json:"aspectRatio"`
	Kind        string `json:"kind"`
}

type failureDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type suggestionDTO struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
}

type stateDTO struct {
	Surface    string         `json:"surface"`
	Phase      string         `json:"phase"`
	InFlight   bool           `json:"inFlight"`
	LastResult *resultDTO     `json:"lastResult,omitempty"`
	LastError  *failureDTO    `json:"lastError,omitempty"`
	Suggestion *suggestionDTO `json:"suggestion,omitempty"`
}

type attachmentDTO struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

type messageDTO struct {
	ID             string          `json:"id"`
	Role           string          `json:"role"`
	Text           string          `json:"text"`
	Timestamp      int64           `json:"timestamp"`
	Attachments    []attachmentDTO `json:"attachments,omitempty"`
	IsThinkingMode bool            `json:"isThinkingMode"`
	Finalized      bool            `json:"finalized"`
}

type chatConfigDTO struct {
	Tier     string `json:"tier"`
	Thinking bool   `json:"thinking"`
}

type chatStateDTO struct {
	Messages   []messageDTO   `json:"messages"`
	Config     chatConfigDTO  `json:"config"`
	Busy       bool           `json:"busy"`
	Suggestion *suggestionDTO `json:"suggestion,omitempty"`
}

func toResultDTO(r domain.GenerationResult) resultDTO {
	return resultDTO{
		ID:          r.ID,
		URL:         r.MediaURL,
		Prompt:      r.DisplayPrompt,
		StyleID:     r.StyleID,
		Timestamp:   r.CreatedAt.UnixMilli(),
		AspectRatio: string(r.AspectRatio),
		Kind:        string(r.MediaKind),
	}
}

func toResultDTOs(items []domain.GenerationResult) []resultDTO {
	out := make([]resultDTO, 0, len(items))
	for _, r := range items {
		out = append(out, toResultDTO(r))
	}
	return out
}

func toSuggestionDTO(s *domain.SpellingSuggestion) *suggestionDTO {
	if s == nil {
		return nil
	}
	return &suggestionDTO{Original: s.Original, Corrected: s.Corrected}
}

func toStateDTO(st domain.PipelineState) stateDTO {
	out := stateDTO{
		Surface:    string(st.Surface),
		Phase:      string(st.Phase),
		InFlight:   st.Phase.InFlight(),
		Suggestion: toSuggestionDTO(st.Suggestion),
	}
	if st.LastResult != nil {
		r := toResultDTO(*st.LastResult)
		out.LastResult = &r
	}
	if st.LastError != nil {
		out.LastError = &failureDTO{Kind: string(st.LastError.Kind), Message: st.LastError.Message}
	}
	return out
}

func toMessageDTO(m domain.ChatMessage) messageDTO {
	out := messageDTO{
		ID:             m.ID,
		Role:           string(m.Role),
		Text:           m.Text,
		Timestamp:      m.CreatedAt.UnixMilli(),
		IsThinkingMode: m.IsThinkingMode,
		Finalized:      m.Finalized,
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, attachmentDTO{Kind: string(a.Kind), URL: a.MediaURL})
	}
	return out
}

func toChatConfigDTO(c chat.Config) chatConfigDTO {
	return chatConfigDTO{Tier: string(c.Tier), Thinking: c.Thinking}
}

func toChatStateDTO(st chat.State) chatStateDTO {
	msgs := make([]messageDTO, 0, len(st.Messages))
	for _, m := range st.Messages {
		msgs = append(msgs, toMessageDTO(m))
	}
	return chatStateDTO{
		Messages:   msgs,
		Config:     toChatConfigDTO(st.Config),
		Busy:       st.Busy,
		Suggestion: toSuggestionDTO(st.Suggestion),
	}
}

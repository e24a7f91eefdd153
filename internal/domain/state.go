package domain

// Phase enumerates the lifecycle states of a generation surface.
type Phase string

const (
	PhaseIdle                           Phase = "idle"
	PhaseCheckingSpelling               Phase = "checking_spelling"
	PhaseAwaitingUserCorrectionDecision Phase = "awaiting_user_correction_decision"
	PhaseDispatching                    Phase = "dispatching"
	PhasePolling                        Phase = "polling"
	PhaseSucceeded                      Phase = "succeeded"
	PhaseFailed                         Phase = "failed"
)

// InFlight reports whether a request currently owns the surface.
func (p Phase) InFlight() bool {
	switch p {
	case PhaseCheckingSpelling, PhaseAwaitingUserCorrectionDecision, PhaseDispatching, PhasePolling:
		return true
	default:
		return false
	}
}

// Failure is the user-visible outcome of a failed request.
type Failure struct {
	Kind    ErrorKind
	Message string
}

// PipelineState is the observable record of one generation surface.
// LastResult and LastError are never both set.
type PipelineState struct {
	Surface    Surface
	Phase      Phase
	LastResult *GenerationResult
	LastError  *Failure
	Suggestion *SpellingSuggestion
}

// Clone returns a deep copy safe to hand to observers.
func (s PipelineState) Clone() PipelineState {
	out := s
	if s.LastResult != nil {
		r := *s.LastResult
		out.LastResult = &r
	}
	if s.LastError != nil {
		f := *s.LastError
		out.LastError = &f
	}
	if s.Suggestion != nil {
		sg := *s.Suggestion
		out.Suggestion = &sg
	}
	return out
}

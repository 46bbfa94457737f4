package domain

// State is the snapshot the presentation layer renders from.
type State struct {
	Messages  []ChatMessage
	Input     string
	Loading   bool
	LastError error
}

// Clone returns a copy of s whose Messages slice does not alias the original.
func (s State) Clone() State {
	out := s
	if s.Messages != nil {
		out.Messages = make([]ChatMessage, len(s.Messages))
		copy(out.Messages, s.Messages)
	}
	return out
}

package session

import "git.home.luguber.info/inful/alarmd/internal/events"

// Visibility tracks whether the ringing surface is currently in front of the user.
// The session manager and the presenter backend write it; indicator handling reads it.
type Visibility struct {
	state *events.State[bool]
}

func NewVisibility() *Visibility {
	return &Visibility{state: events.NewState(false)}
}

func (v *Visibility) Visible() bool { return v.state.Get() }

func (v *Visibility) SetVisible(visible bool) {
	if v.state.Get() == visible {
		return
	}
	v.state.Set(visible)
}

// Watch calls fn with the current value and on every change.
func (v *Visibility) Watch(fn func(bool)) func() { return v.state.Subscribe(fn) }

package chat

import (
	"maps"
	"slices"
)

// Presence is the set of users currently typing. Entries persist until a
// stop event, the user leaving, or the session disconnecting.
type Presence struct {
	typing map[string]struct{}
}

// Apply records a typing event. Repeating an event has no further effect.
func (p *Presence) Apply(userID string, isTyping bool) {
	if userID == "" {
		return
	}
	if !isTyping {
		delete(p.typing, userID)
		return
	}
	if p.typing == nil {
		p.typing = make(map[string]struct{})
	}
	p.typing[userID] = struct{}{}
}

// Remove drops a user, typing or not.
func (p *Presence) Remove(userID string) {
	delete(p.typing, userID)
}

// Clear empties the set.
func (p *Presence) Clear() {
	p.typing = nil
}

// Len returns the number of users typing.
func (p *Presence) Len() int {
	return len(p.typing)
}

// Users returns the typing user ids in sorted order.
func (p *Presence) Users() []string {
	return slices.Sorted(maps.Keys(p.typing))
}

package chat

import (
	"slices"
	"sort"

	servicegeek "github.com/service-geek/client"
)

// Timeline is the ordered view of a project's messages. It holds at most
// one entry per message id. It is not safe for concurrent use; Session
// guards its Timeline with its own mutex.
type Timeline struct {
	msgs []servicegeek.Message
	ids  map[string]struct{}
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	return len(t.msgs)
}

// Messages returns a copy of the timeline, oldest first.
func (t *Timeline) Messages() []servicegeek.Message {
	return slices.Clone(t.msgs)
}

// Has reports whether a message with the id is present.
func (t *Timeline) Has(id string) bool {
	_, ok := t.ids[id]
	return ok
}

// Reset empties the timeline.
func (t *Timeline) Reset() {
	t.msgs = nil
	t.ids = nil
}

// ReplaceNewestFirst replaces the timeline with a server page delivered
// newest first.
func (t *Timeline) ReplaceNewestFirst(page []servicegeek.Message) {
	t.Reset()
	for i := len(page) - 1; i >= 0; i-- {
		t.add(page[i])
	}
	t.sort()
}

// Merge adds older (or overlapping) history and restores ascending order.
// Messages already present keep their existing entry.
func (t *Timeline) Merge(page []servicegeek.Message) {
	for _, m := range page {
		t.add(m)
	}
	t.sort()
}

// Append adds a message at the end without sorting. Delivery order on the
// live path is trusted to match creation order. It reports false when the
// id is already present.
func (t *Timeline) Append(m servicegeek.Message) bool {
	return t.add(m)
}

// Remove deletes the message with the given id, reporting whether it was
// present.
func (t *Timeline) Remove(id string) bool {
	if !t.Has(id) {
		return false
	}
	delete(t.ids, id)
	t.msgs = slices.DeleteFunc(t.msgs, func(m servicegeek.Message) bool {
		return m.ID == id
	})
	return true
}

func (t *Timeline) add(m servicegeek.Message) bool {
	if t.Has(m.ID) {
		return false
	}
	if t.ids == nil {
		t.ids = make(map[string]struct{})
	}
	t.ids[m.ID] = struct{}{}
	t.msgs = append(t.msgs, m)
	return true
}

func (t *Timeline) sort() {
	sort.SliceStable(t.msgs, func(i, j int) bool {
		return t.msgs[i].CreatedAt.Before(t.msgs[j].CreatedAt)
	})
}

package trade

import (
	"strings"
	"sync"

	"ex-otogi-trade/pkg/otogi"
)

// memberEntry is what the module last saw of one member.
type memberEntry struct {
	actor  otogi.Actor
	source otogi.EventSource
}

// memberDirectory remembers member labels and the driver that can reach them.
type memberDirectory struct {
	mu      sync.RWMutex
	entries map[string]memberEntry
}

func newMemberDirectory() *memberDirectory {
	return &memberDirectory{entries: make(map[string]memberEntry)}
}

// remember stores the actor of event, keeping earlier fields the new event lacks.
func (d *memberDirectory) remember(event *otogi.Event) {
	if event == nil || strings.TrimSpace(event.Actor.ID) == "" || event.Actor.IsBot {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry := d.entries[event.Actor.ID]
	entry.actor.ID = event.Actor.ID
	if event.Actor.Username != "" {
		entry.actor.Username = event.Actor.Username
	}
	if event.Actor.DisplayName != "" {
		entry.actor.DisplayName = event.Actor.DisplayName
	}
	if !event.Source.IsZero() {
		entry.source = event.Source
	}
	d.entries[event.Actor.ID] = entry
}

// label renders @username, else the display name, else the member ID.
func (d *memberDirectory) label(memberID string) string {
	d.mu.RLock()
	entry, ok := d.entries[memberID]
	d.mu.RUnlock()
	if !ok {
		return memberID
	}

	switch {
	case entry.actor.Username != "":
		return "@" + entry.actor.Username
	case entry.actor.DisplayName != "":
		return entry.actor.DisplayName
	default:
		return memberID
	}
}

// privateTarget addresses a direct conversation with memberID through the
// driver that last saw them.
func (d *memberDirectory) privateTarget(memberID string) otogi.OutboundTarget {
	d.mu.RLock()
	entry := d.entries[memberID]
	d.mu.RUnlock()

	return otogi.DirectTarget(memberID, entry.source)
}

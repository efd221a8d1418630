package syncer

import "fmt"

// EventKind classifies sync activity.
type EventKind int

const (
	EventSyncStarted EventKind = iota
	EventSyncFinished
	EventRemoteChange
	EventLocalChange
)

func (k EventKind) String() string {
	switch k {
	case EventSyncStarted:
		return "sync-started"
	case EventSyncFinished:
		return "sync-finished"
	case EventRemoteChange:
		return "remote-change"
	case EventLocalChange:
		return "local-change"
	default:
		return "unknown"
	}
}

// Event is one piece of sync activity.
type Event struct {
	Kind EventKind
	// ID is the note id for change events.
	ID      string
	Deleted bool
	Err     error
}

func (e Event) String() string {
	s := e.Kind.String()
	if e.ID != "" {
		s += " " + e.ID
	}
	if e.Deleted {
		s += " (deleted)"
	}
	if e.Err != nil {
		s += fmt.Sprintf(": %v", e.Err)
	}
	return s
}

func (s *Syncer) emit(e Event) {
	if s.opts.events == nil {
		return
	}
	select {
	case s.opts.events <- e:
	default:
	}
}

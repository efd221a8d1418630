package core

import "fmt"

// SyncMode selects the synchronization protocol.
type SyncMode string

const (
	ModeOneWay         SyncMode = "one-way"
	ModeOneWayDelete   SyncMode = "one-way-delete"
	ModeTwoWay         SyncMode = "two-way"
	ModeRealtimeOneWay SyncMode = "realtime-one-way"
	ModeRealtimeTwoWay SyncMode = "realtime-two-way"
)

// Modes lists every supported mode.
var Modes = []SyncMode{ModeOneWay, ModeOneWayDelete, ModeTwoWay, ModeRealtimeOneWay, ModeRealtimeTwoWay}

// ParseSyncMode validates s.
func ParseSyncMode(s string) (SyncMode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown sync mode %q", s)
}

// PushesLocal reports whether local changes are pushed to the remote store.
func (m SyncMode) PushesLocal() bool {
	return m == ModeTwoWay || m == ModeRealtimeTwoWay
}

// Realtime reports whether the mode mirrors single changes as they happen.
func (m SyncMode) Realtime() bool {
	return m == ModeRealtimeOneWay || m == ModeRealtimeTwoWay
}

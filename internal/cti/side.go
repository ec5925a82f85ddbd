package cti

import "sync/atomic"

// SideName selects one of the two redundant gateway endpoints.
type SideName uint8

const (
	SideActive SideName = iota
	SideStandby
)

func (s SideName) String() string {
	if s == SideStandby {
		return "standby"
	}
	return "active"
}

// Side is the active/standby selection shared by every session the
// supervisor creates. It also counts consecutive failed attempts.
type Side struct {
	standby atomic.Bool
	retries atomic.Int32
}

// NewSide returns a selection pointing at the active side.
func NewSide() *Side {
	return &Side{}
}

// Current returns the side the next session should dial.
func (s *Side) Current() SideName {
	if s.standby.Load() {
		return SideStandby
	}
	return SideActive
}

// IsActive reports whether the active side is selected.
func (s *Side) IsActive() bool { return !s.standby.Load() }

// Toggle switches to the other side and returns it.
func (s *Side) Toggle() SideName {
	for {
		cur := s.standby.Load()
		if s.standby.CompareAndSwap(cur, !cur) {
			if cur {
				return SideActive
			}
			return SideStandby
		}
	}
}

// Retries returns the number of consecutive failed attempts.
func (s *Side) Retries() int { return int(s.retries.Load()) }

// AddRetry records a failed attempt and returns the new count.
func (s *Side) AddRetry() int { return int(s.retries.Add(1)) }

// ResetRetries clears the count after a successful connect.
func (s *Side) ResetRetries() { s.retries.Store(0) }

package server

import "sync/atomic"

// State is the lifecycle phase of a Server.
type State int32

const (
	Stopped State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// stateValue is written by Start and Stop and read by the accept loop.
type stateValue struct {
	v atomic.Int32
}

func (s *stateValue) Load() State {
	return State(s.v.Load())
}

func (s *stateValue) Store(st State) {
	s.v.Store(int32(st))
}

func (s *stateValue) CompareAndSwap(from, to State) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}

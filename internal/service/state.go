package service

import "fmt"

// State is the lifecycle phase of a ServiceState.
type State int32

const (
	StateStarting State = iota
	StateWarming
	StateServing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateWarming:
		return "warming"
	case StateServing:
		return "serving"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

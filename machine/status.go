package machine

import "fmt"

// Status is the machine lifecycle state.
type Status int32

const (
	StatusUninitialized Status = iota
	StatusReady
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusReady:
		return "ready"
	case StatusStopped:
		return "stopped"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

package fsm

import "fmt"

// State is one step of the startup/shutdown sequence.
type State int

const (
	StateInit State = iota
	StateParseArgs
	StateValidateConfig
	StateModeSelect
	StateServerMode
	StateClientStandard
	StateCleanup
	StateExit
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateParseArgs:
		return "ParseArgs"
	case StateValidateConfig:
		return "ValidateConfig"
	case StateModeSelect:
		return "ModeSelect"
	case StateServerMode:
		return "ServerMode"
	case StateClientStandard:
		return "ClientStandard"
	case StateCleanup:
		return "Cleanup"
	case StateExit:
		return "Exit"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateExit
}

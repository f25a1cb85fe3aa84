package mission

import (
	"errors"
	"fmt"
	"slices"
)

// State is the mission lifecycle position. States only move forward.
type State int

const (
	Idle State = iota
	Arming
	TakingOff
	Hovering
	Landing
	Failed
)

var stateNames = [...]string{
	Idle:      "Idle",
	Arming:    "Arming",
	TakingOff: "TakingOff",
	Hovering:  "Hovering",
	Landing:   "Landing",
	Failed:    "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrIllegalTransition is returned for any move not in the transition table
var ErrIllegalTransition = errors.New("illegal mission state transition")

var transitions = map[State][]State{
	Idle:      {Arming},
	Arming:    {TakingOff, Failed},
	TakingOff: {Hovering, Failed},
	Hovering:  {Landing, Failed},
}

// CanTransition reports whether the mission may move from s to next
func (s State) CanTransition(next State) bool {
	return slices.Contains(transitions[s], next)
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

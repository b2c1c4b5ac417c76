package contain

import (
	"encoding/json"
	"fmt"
)

// Status is the outcome state of a flank simulation.
//
// A flank starts Unreported, becomes Reported once its report inputs are
// known and Attacked once line construction begins. Contained and Overrun are
// set only by Flank.Step; the remaining terminal states are imposed by the
// Simulator.
type Status string

const (
	// StatusUnreported indicates the fire has not been reported yet.
	StatusUnreported Status = "unreported"

	// StatusReported indicates the fire has been reported but not attacked.
	StatusReported Status = "reported"

	// StatusAttacked indicates line construction is in progress.
	StatusAttacked Status = "attacked"

	// StatusContained indicates the attack line closed on the fire.
	StatusContained Status = "contained"

	// StatusOverrun indicates the free-burning edge outpaced line production.
	StatusOverrun Status = "overrun"

	// StatusExhausted indicates every scheduled resource finished its shift
	// before the fire was contained.
	StatusExhausted Status = "exhausted"

	// StatusOverflow indicates the simulation could not settle on a step size
	// (or pass budget) that fits the step limits.
	StatusOverflow Status = "overflow"

	// StatusSizeLimitExceeded indicates the fire grew past the size limit.
	StatusSizeLimitExceeded Status = "size_limit_exceeded"

	// StatusTimeLimitExceeded indicates the fire burned past the time limit.
	StatusTimeLimitExceeded Status = "time_limit_exceeded"
)

var statusCodes = map[Status]int{
	StatusUnreported:        0,
	StatusReported:          1,
	StatusAttacked:          2,
	StatusContained:         3,
	StatusOverrun:           4,
	StatusExhausted:         5,
	StatusOverflow:          6,
	StatusSizeLimitExceeded: 7,
	StatusTimeLimitExceeded: 8,
}

// IsTerminal returns true if the status is a final outcome.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusContained, StatusOverrun, StatusExhausted, StatusOverflow,
		StatusSizeLimitExceeded, StatusTimeLimitExceeded:
		return true
	default:
		return false
	}
}

// Escaped returns true if the status is terminal and the fire was not contained.
func (s Status) Escaped() bool {
	return s.IsTerminal() && s != StatusContained
}

// Code returns the stable numeric code of the status (0 through 8).
func (s Status) Code() int {
	if c, ok := statusCodes[s]; ok {
		return c
	}
	return -1
}

// Validate checks if the status is valid.
func (s Status) Validate() error {
	if _, ok := statusCodes[s]; !ok {
		return fmt.Errorf("invalid status: %s", s)
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = Status(str)
	return s.Validate()
}

// Tactic is the side of the fire the attack starts from.
type Tactic string

const (
	// TacticHead starts line construction at the head and works back along the flank.
	TacticHead Tactic = "head"

	// TacticRear starts line construction at the rear and works forward to the head.
	TacticRear Tactic = "rear"
)

// Validate checks if the tactic is valid.
func (t Tactic) Validate() error {
	switch t {
	case TacticHead, TacticRear:
		return nil
	default:
		return fmt.Errorf("invalid tactic: %s", t)
	}
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (t *Tactic) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*t = Tactic(str)
	return t.Validate()
}

// Side is the fire flank a resource is assigned to.
type Side string

const (
	// SideLeft assigns a resource to the left flank.
	SideLeft Side = "left"

	// SideRight assigns a resource to the right flank.
	SideRight Side = "right"

	// SideBoth assigns a resource to both flanks.
	SideBoth Side = "both"

	// SideNeither leaves a resource unassigned.
	SideNeither Side = "neither"
)

// Validate checks if the side is valid.
func (s Side) Validate() error {
	switch s {
	case SideLeft, SideRight, SideBoth, SideNeither:
		return nil
	default:
		return fmt.Errorf("invalid side: %s", s)
	}
}

// Covers returns true if a resource assigned to s works on flank.
func (s Side) Covers(flank Side) bool {
	return s == flank || s == SideBoth
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *Side) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = Side(str)
	return s.Validate()
}

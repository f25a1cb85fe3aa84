package control

import (
	"fmt"

	"github.com/roman-kulish/althold/internal/failsafe"
)

// FailsafeError is returned when a control loop aborted and ran the corrective
// action. Err carries the sensor or link failure that caused it, if any.
type FailsafeError struct {
	Phase   Phase
	Verdict failsafe.Verdict
	Err     error
}

func (e *FailsafeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s aborted (%s): %v", e.Phase, e.Verdict, e.Err)
	}
	return fmt.Sprintf("%s aborted (%s)", e.Phase, e.Verdict)
}

func (e *FailsafeError) Unwrap() error {
	return e.Err
}

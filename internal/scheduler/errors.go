package scheduler

import "fmt"

// InfeasibilityError reports input that cannot be scheduled no matter how long evolution runs.
type InfeasibilityError struct {
	Reason string
}

func (e *InfeasibilityError) Error() string {
	return "infeasible input: " + e.Reason
}

func infeasible(format string, args ...any) error {
	return &InfeasibilityError{Reason: fmt.Sprintf(format, args...)}
}

// EncodingError reports a mismatch between the domain model and the chromosome shape.
type EncodingError struct {
	BlockID   string
	Component Component
	Reason    string
}

func (e *EncodingError) Error() string {
	if e.BlockID == "" {
		return "encoding: " + e.Reason
	}
	return fmt.Sprintf("encoding %s/%s: %s", e.BlockID, e.Component, e.Reason)
}

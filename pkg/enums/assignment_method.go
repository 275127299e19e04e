package enums

import "fmt"

// AssignmentMethod records how an order got its provider.
type AssignmentMethod string

const (
	AssignmentAuto   AssignmentMethod = "auto"
	AssignmentManual AssignmentMethod = "manual"
)

var validAssignmentMethods = []AssignmentMethod{
	AssignmentAuto,
	AssignmentManual,
}

// String implements fmt.Stringer.
func (v AssignmentMethod) String() string {
	return string(v)
}

// IsValid reports whether the value is a known AssignmentMethod.
func (v AssignmentMethod) IsValid() bool {
	for _, candidate := range validAssignmentMethods {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseAssignmentMethod converts raw input into a AssignmentMethod.
func ParseAssignmentMethod(value string) (AssignmentMethod, error) {
	for _, candidate := range validAssignmentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment method %q", value)
}

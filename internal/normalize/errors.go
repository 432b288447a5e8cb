package normalize

import "fmt"

// StatusError reports that the provider returned a payload with a non-success
// application status. The raw status is kept for diagnostics.
type StatusError struct {
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream reported status %q", e.Status)
}

// MissingDataError reports that a field required to build a canonical record
// was absent or unusable in the provider payload.
type MissingDataError struct {
	Field string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("no usable %s in upstream payload", e.Field)
}

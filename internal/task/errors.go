package task

import (
	"fmt"
	"strings"
)

// MissingTaskError reports requested task ids that do not exist in the
// store. Always fatal to the calling operation.
type MissingTaskError struct {
	IDs []string
}

func (e *MissingTaskError) Error() string {
	return fmt.Sprintf("tasks not found: %s", strings.Join(e.IDs, ", "))
}

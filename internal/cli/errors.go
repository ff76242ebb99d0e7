package cli

import (
	"fmt"
	"os"

	syncerrors "github.com/randalmurphal/tasksync/internal/errors"
)

// PrintError prints an error to stderr with appropriate formatting.
// A SyncError is shown in its user-friendly form; anything else as is.
func PrintError(err error) {
	if syncErr := syncerrors.AsSyncError(err); syncErr != nil {
		fmt.Fprintln(os.Stderr, syncErr.UserMessage())
		if verbose {
			fmt.Fprintf(os.Stderr, "\nCode: %s\n", syncErr.Code)
			if syncErr.Cause != nil {
				fmt.Fprintf(os.Stderr, "Cause: %v\n", syncErr.Cause)
			}
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// Command subsession coordinates sub-agent sessions working in one repository.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Iron-Ham/subsession/internal/app"
	"github.com/Iron-Ham/subsession/internal/cmd"
	apperrors "github.com/Iron-Ham/subsession/internal/errors"
)

const errorHint = "Run 'subsession --help' for usage or 'subsession logs' for details."

func main() {
	if err := cmd.Execute(); err != nil {
		// The result was already rendered; only the exit status is left.
		if !errors.Is(err, app.ErrFailed) {
			fmt.Fprintln(os.Stderr, errorMessage(err))
		}
		os.Exit(1)
	}
}

// errorMessage formats err for stderr. Domain errors name the object and
// the problem already; anything else gets a pointer to help and logs.
func errorMessage(err error) string {
	msg := "Error: " + err.Error()
	if apperrors.IsUserFacing(err) {
		return msg
	}
	return msg + "\n" + errorHint
}

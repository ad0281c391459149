package errs

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// exit is replaced in tests.
var exit = os.Exit

// External reports an error and kills the program. It should be used when an
// error is something a user could reasonably be expected to fix through
// changes in configuration/data/environment. It has the same signature as the
// standard fmt.*printf() functions.
func External(format string, a ...interface{}) {
	logrus.Errorf("neighbors exited early with the following error:\n"+
		format, a...)
	exit(1)
}

// Internal reports an error along with a stack trace and kills the program.
// It should be used when the error requires a code dive to fix.
func Internal(format string, a ...interface{}) {
	logrus.WithField("stack", string(debug.Stack())).Errorf(
		"neighbors exited early with the following internal error:\n%s",
		fmt.Sprintf(format, a...),
	)
	exit(1)
}

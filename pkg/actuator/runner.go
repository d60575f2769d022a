package actuator

import (
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sailmode/sail/pkg/setup"
)

// RunTimeout bounds one helper subprocess. Hardware writes finish in
// well under a second; a helper stuck longer than this is treated as an
// actuation failure.
const RunTimeout = 5 * time.Second

// Runner executes one helper invocation and returns its combined
// output.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// SudoRunner invokes the installed helper through sudo. The rule from
// pkg/setup makes exactly these invocations password-free; -n turns any
// unexpected prompt into an immediate error instead of a hang on a
// terminal nobody is watching.
type SudoRunner struct {
	HelperPath string
}

var _ Runner = (*SudoRunner)(nil)

// NewSudoRunner returns a Runner invoking the helper at the standard
// path.
func NewSudoRunner() *SudoRunner {
	return &SudoRunner{HelperPath: setup.DefaultHelperPath}
}

func (r *SudoRunner) Run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, RunTimeout)
	defer cancel()

	sudoArgs := append([]string{"-n", r.HelperPath}, args...)

	logrus.WithField("args", sudoArgs).Trace("Running privileged helper")

	out, err := exec.CommandContext(ctx, "sudo", sudoArgs...).CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return string(out), errors.Wrapf(context.DeadlineExceeded, "helper did not finish within %s", RunTimeout)
		}
		return string(out), errors.Wrapf(err, "helper failed: %s", string(out))
	}
	return string(out), nil
}

package guest

import (
	"context"

	"github.com/mensylisir/xmguest/runner"
)

// RunHostCommand runs command on the host as root. Prefixes are not
// applied and the sudo flag of the original call is ignored; only the
// shell, pty and stderr plumbing are honored.
func RunHostCommand(ctx context.Context, r *runner.Runner, command string, shell, pty, combineStderr bool) (*runner.Result, error) {
	s := r.Settings()
	wrapped := runner.Wrap(s, command, shell, runner.SudoPrefix(s, ""))

	r.Announce("sudo", command, wrapped)
	stdout, stderr, status, err := r.Execute(ctx, wrapped, pty, combineStderr)
	return r.Report("sudo", command, wrapped, stdout, stderr, status, err)
}

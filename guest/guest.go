// Package guest redirects runner commands into an OpenVZ container.
//
// Inside a guest scope every Run or Sudo call is rewritten into
//
//	vzctl exec2 <target> '<inner command>'
//
// and executed on the host as root. The inner command is built with the
// runner's prefixes and a non-login shell, and is quoted only once; the
// host-level wrap applies the escaping for the outer layer.
package guest

import (
	"context"
	"path"

	"github.com/mensylisir/xmguest/common"
	"github.com/mensylisir/xmguest/runner"
)

var (
	_ runner.Strategy   = (*Strategy)(nil)
	_ runner.PathMapper = (*Strategy)(nil)
)

// Strategy is the runner strategy that executes commands inside a container.
type Strategy struct {
	target   string
	tool     string
	resolver *Resolver
}

type Option func(*Strategy)

// WithTool sets the container-exec binary. Defaults to vzctl.
func WithTool(tool string) Option {
	return func(s *Strategy) {
		if tool != "" {
			s.tool = tool
		}
	}
}

// WithResolver sets the resolver used to map paths into the container root.
func WithResolver(r *Resolver) Option {
	return func(s *Strategy) {
		if r != nil {
			s.resolver = r
		}
	}
}

func NewStrategy(target string, opts ...Option) *Strategy {
	s := &Strategy{
		target: target,
		tool:   common.DefaultContainerTool,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = DefaultResolver
	}
	return s
}

func (s *Strategy) Target() string {
	return s.target
}

func (s *Strategy) Tool() string {
	return s.tool
}

// GuestSettings returns a copy of settings with the container's shell and
// a double-quoted sudo prompt, which survive nesting in single quotes.
func GuestSettings(settings runner.Settings) runner.Settings {
	gs := settings.Clone()
	gs.Shell = common.GuestShell
	gs.SudoPrefix = common.GuestSudoPrefix
	return gs
}

// GuestCommand builds the command run inside the container. The shell is
// always requested; a sudo prefix is added only for sudo with a user,
// since commands already run as root in the container.
func GuestCommand(settings runner.Settings, req runner.Request) string {
	gs := GuestSettings(settings)
	sudoPrefix := ""
	if req.Sudo && req.User != "" {
		sudoPrefix = runner.SudoPrefix(gs, req.User)
	}
	return runner.InnerWrap(gs, runner.PrefixCommands(gs, runner.PrefixEnvVars(gs, req.Command)), true, sudoPrefix)
}

// OuterCommand is the host command that enters the container.
func OuterCommand(tool, target, inner string) string {
	return tool + " " + common.ContainerExecVerb + " " + target + " '" + inner + "'"
}

func (s *Strategy) RunCommand(ctx context.Context, r *runner.Runner, req runner.Request) (*runner.Result, error) {
	gr := r.WithLogger(r.Logger().WithField(common.GuestName, s.target))

	inner := GuestCommand(r.Settings(), req)
	outer := OuterCommand(s.tool, s.target, inner)
	if err := CheckNesting(s.tool, s.target, outer); err != nil {
		gr.Logger().Warnf("command may not survive nesting: %v", err)
	}
	return RunHostCommand(ctx, gr, outer, req.Shell, req.PTY, req.CombineStderr)
}

// MapPath maps an absolute container path onto the host's view of the
// container root. Relative paths are taken from the cwd setting, or /root.
func (s *Strategy) MapPath(ctx context.Context, r *runner.Runner, remotePath string) (string, error) {
	ctid, err := s.resolver.Resolve(ctx, r.Host(), s.target)
	if err != nil {
		return "", err
	}
	if !path.IsAbs(remotePath) {
		base := r.Settings().Cwd
		if !path.IsAbs(base) {
			base = "/root"
		}
		remotePath = path.Join(base, remotePath)
	}
	return path.Join(common.ContainerRootBase, ctid, path.Clean(remotePath)), nil
}

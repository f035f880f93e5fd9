package runner

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mensylisir/xmguest/common"
	"github.com/mensylisir/xmguest/connector"
	"github.com/mensylisir/xmguest/logger"
)

// Request is one command as handed to a Strategy.
type Request struct {
	Command       string
	Shell         bool
	PTY           bool
	CombineStderr bool
	Sudo          bool
	User          string
}

// Strategy is the execution primitive behind Run and Sudo.
type Strategy interface {
	RunCommand(ctx context.Context, r *Runner, req Request) (*Result, error)
}

// PathMapper is implemented by strategies that relocate remote paths for Put and Get.
type PathMapper interface {
	MapPath(ctx context.Context, r *Runner, remotePath string) (string, error)
}

type hostStrategy struct{}

var defaultStrategy Strategy = &hostStrategy{}

// HostStrategy returns the standard primitive: prefixes, standard wrap,
// optional sudo, announce, execute, report.
func HostStrategy() Strategy {
	return defaultStrategy
}

func (*hostStrategy) RunCommand(ctx context.Context, r *Runner, req Request) (*Result, error) {
	s := r.Settings()
	verb := "run"
	sudoPrefix := ""
	if req.Sudo {
		verb = "sudo"
		sudoPrefix = SudoPrefix(s, req.User)
	}
	wrapped := Wrap(s, PrefixCommands(s, PrefixEnvVars(s, req.Command)), req.Shell, sudoPrefix)

	r.Announce(verb, req.Command, wrapped)
	stdout, stderr, status, err := r.Execute(ctx, wrapped, req.PTY, req.CombineStderr)
	return r.Report(verb, req.Command, wrapped, stdout, stderr, status, err)
}

// Runner executes commands against one host. Children created with With,
// Host and WithSettings share the channel but never mutate their parent.
type Runner struct {
	conn     connector.Executor
	host     string
	settings Settings
	log      *logrus.Entry
	slot     *strategySlot
}

func New(conn connector.Executor, host string, settings Settings, log *logrus.Entry) *Runner {
	if log == nil {
		log = logger.Log.ForHost(host)
	} else {
		log = log.WithField(common.HostName, host)
	}
	return &Runner{
		conn:     conn,
		host:     host,
		settings: settings.Clone(),
		log:      log,
		slot:     newStrategySlot(defaultStrategy),
	}
}

func (r *Runner) HostString() string {
	return r.host
}

func (r *Runner) Logger() *logrus.Entry {
	return r.log
}

func (r *Runner) Conn() connector.Executor {
	return r.conn
}

// Settings returns a copy of the runner's settings.
func (r *Runner) Settings() Settings {
	return r.settings.Clone()
}

type RunOption func(*Request)

func WithShell(shell bool) RunOption {
	return func(req *Request) { req.Shell = shell }
}

func WithPTY(pty bool) RunOption {
	return func(req *Request) { req.PTY = pty }
}

func WithCombineStderr(combine bool) RunOption {
	return func(req *Request) { req.CombineStderr = combine }
}

// AsUser sets the sudo target user.
func AsUser(user string) RunOption {
	return func(req *Request) { req.User = user }
}

func (r *Runner) request(command string, sudo bool, opts []RunOption) Request {
	req := Request{
		Command:       command,
		Shell:         true,
		PTY:           r.settings.PTY,
		CombineStderr: r.settings.CombineStderr,
		Sudo:          sudo,
	}
	if sudo {
		req.User = r.settings.SudoUser
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// Run executes command through the installed strategy.
func (r *Runner) Run(ctx context.Context, command string, opts ...RunOption) (*Result, error) {
	return r.Strategy().RunCommand(ctx, r, r.request(command, false, opts))
}

// Sudo executes command with elevation through the installed strategy.
func (r *Runner) Sudo(ctx context.Context, command string, opts ...RunOption) (*Result, error) {
	return r.Strategy().RunCommand(ctx, r, r.request(command, true, opts))
}

// Execute sends an already wrapped command over the channel. Output is
// trimmed of surrounding whitespace.
func (r *Runner) Execute(ctx context.Context, wrapped string, pty, combineStderr bool) (stdout, stderr string, status int, err error) {
	out, errOut, code, err := r.conn.Exec(ctx, wrapped, connector.ExecOptions{PTY: pty, CombineStderr: combineStderr})
	return strings.TrimSpace(string(out)), strings.TrimSpace(string(errOut)), code, err
}

// Announce prints the diagnostic line for a command: the wrapped form in
// debug output, the requested form in running output, nothing otherwise.
func (r *Runner) Announce(verb, given, wrapped string) {
	switch {
	case r.settings.Output.Debug:
		r.log.Infof("%s: %s", verb, wrapped)
	case r.settings.Output.Running:
		r.log.Infof("%s: %s", verb, given)
	}
}

// Report builds the Result for a finished command. A nonzero status, or a
// transport error, marks the result failed; in warn-only mode the failure
// is logged and err is nil, otherwise a *CommandError is returned along
// with the result.
func (r *Runner) Report(verb, given, wrapped, stdout, stderr string, status int, cause error) (*Result, error) {
	if cause != nil && status == 0 {
		status = -1
	}
	res := &Result{
		Stdout:     stdout,
		Stderr:     stderr,
		ReturnCode: status,
		Failed:     status != 0,
		Command:    given,
		Executed:   wrapped,
	}
	if !res.Failed {
		return res, nil
	}

	if r.settings.WarnOnly {
		entry := r.log
		if cause != nil {
			entry = entry.WithError(cause)
		}
		entry.Warn(warnMessage(verb, status, given))
		return res, nil
	}
	return res, &CommandError{
		Verb:       verb,
		Requested:  given,
		Executed:   wrapped,
		ReturnCode: status,
		Stdout:     stdout,
		Stderr:     stderr,
		Cause:      cause,
	}
}

// Strategy returns the currently installed strategy.
func (r *Runner) Strategy() Strategy {
	return r.slot.current()
}

// Install pushes s as the runner's strategy. The returned restore truncates
// the stack back to the state before this call; calling it more than once
// has no further effect.
func (r *Runner) Install(s Strategy) (restore func()) {
	depth := r.slot.push(s)
	var once sync.Once
	return func() {
		once.Do(func() { r.slot.truncate(depth, r.log) })
	}
}

func (r *Runner) derive() *Runner {
	child := *r
	child.settings = r.settings.Clone()
	return &child
}

// With returns a child runner whose strategy is s.
func (r *Runner) With(s Strategy) *Runner {
	child := r.derive()
	child.slot = newStrategySlot(s)
	return child
}

// Host returns a child runner using the standard host strategy.
func (r *Runner) Host() *Runner {
	return r.With(defaultStrategy)
}

// WithSettings returns a child runner with modified settings. The child
// shares the parent's strategy stack.
func (r *Runner) WithSettings(modify func(*Settings)) *Runner {
	child := r.derive()
	modify(&child.settings)
	return child
}

// WithLogger returns a child runner logging through entry.
func (r *Runner) WithLogger(entry *logrus.Entry) *Runner {
	child := r.derive()
	child.log = entry
	return child
}

type strategySlot struct {
	mu    sync.Mutex
	stack []Strategy
}

func newStrategySlot(base Strategy) *strategySlot {
	return &strategySlot{stack: []Strategy{base}}
}

func (s *strategySlot) current() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack[len(s.stack)-1]
}

// push returns the stack depth before s was added.
func (s *strategySlot) push(st Strategy) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	depth := len(s.stack)
	s.stack = append(s.stack, st)
	return depth
}

func (s *strategySlot) truncate(depth int, log *logrus.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case len(s.stack) <= depth:
		log.Warnf("strategy stack already below depth %d, nothing to restore", depth)
		return
	case len(s.stack) > depth+1:
		log.Debugf("discarding %d strategies installed after depth %d", len(s.stack)-depth-1, depth)
	}
	s.stack = s.stack[:depth]
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mensylisir/xmguest/common"
	"github.com/mensylisir/xmguest/config"
	"github.com/mensylisir/xmguest/connector"
	"github.com/mensylisir/xmguest/guest"
	"github.com/mensylisir/xmguest/logger"
	"github.com/mensylisir/xmguest/runner"
	xmtime "github.com/mensylisir/xmguest/time"
	"github.com/mensylisir/xmguest/util"
)

const localHostName = "localhost"

type globalOptions struct {
	configPath   string
	hosts        []string
	user         string
	password     string
	keyPath      string
	port         int
	guest        string
	tool         string
	warnOnly     bool
	showCommands bool
	debug        bool
	verbose      bool
	logDir       string
	local        bool
}

// target is one host and the guests to enter on it. An empty guest list
// means commands run on the host itself.
type target struct {
	host   *connector.BaseHost
	guests []string
}

// app is the state shared by all subcommands once flags and config are resolved.
type app struct {
	opts     *globalOptions
	settings runner.Settings
	tool     string
	targets  []target
	dialer   connector.Dialer
	out      io.Writer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{out: os.Stdout})
}

func newRootCommand(a *app) *cobra.Command {
	a.opts = &globalOptions{}
	cmd := &cobra.Command{
		Use:   common.AppName,
		Short: "Run commands inside OpenVZ containers through their host.",
		Long: "Run commands inside OpenVZ containers through their host.\n" +
			"Every command is rewritten into 'vzctl exec2 <id> ...' and executed on the host as root. " +
			"Without --guest, commands run on the hosts themselves.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.prepare(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&a.opts.configPath, "config", "c", "", "path to a GuestConfig YAML file")
	f.StringArrayVarP(&a.opts.hosts, "host", "H", nil, "host name from the config, or an address (repeatable)")
	f.StringVarP(&a.opts.user, "user", "u", "", "SSH user")
	f.StringVarP(&a.opts.password, "password", "p", "", "SSH and sudo password")
	f.StringVarP(&a.opts.keyPath, "key", "i", "", "path to an SSH private key")
	f.IntVar(&a.opts.port, "port", common.DefaultSSHPort, "SSH port")
	f.StringVarP(&a.opts.guest, "guest", "g", "", "container name or CTID to run inside")
	f.StringVar(&a.opts.tool, "tool", "", "container exec tool on the host (default \"vzctl\")")
	f.BoolVar(&a.opts.warnOnly, "warn-only", false, "log failing commands instead of aborting")
	f.BoolVar(&a.opts.showCommands, "show-commands", true, "print each command before running it")
	f.BoolVar(&a.opts.debug, "debug", false, "print commands as executed, after wrapping")
	f.BoolVarP(&a.opts.verbose, "verbose", "v", false, "enable debug logging")
	f.StringVar(&a.opts.logDir, "log-dir", "", "write logs to a rotated file in this directory")
	f.BoolVar(&a.opts.local, "local", false, "run on this machine instead of over SSH")
	_ = cmd.MarkPersistentFlagFilename("config", "yaml", "yml")

	cmd.AddCommand(
		NewRunCommand(a),
		NewSudoCommand(a),
		NewPutCommand(a),
		NewGetCommand(a),
		NewResolveCommand(a),
	)
	return cmd
}

// prepare merges the config file and flags into settings and targets.
// Flags win over the config file.
func (a *app) prepare(cmd *cobra.Command) error {
	cfg := &config.GuestConfig{}
	if a.opts.configPath != "" {
		configPath, err := util.ExpandHome(a.opts.configPath)
		if err != nil {
			return err
		}
		loaded, err := config.NewLoader(configPath).Load()
		if err != nil {
			return err
		}
		cfg = loaded
	}
	config.SetDefaults(cfg)

	logDir := cfg.Spec.Log.Dir
	if a.opts.logDir != "" {
		logDir = a.opts.logDir
	}
	if err := logger.InitGlobalLogger(logDir, a.opts.verbose || cfg.Spec.Log.Verbose, cfg.Spec.Log.LogLevel()); err != nil {
		return err
	}

	a.settings = cfg.Spec.Settings.ToRunnerSettings()
	flags := cmd.Flags()
	if flags.Changed("warn-only") {
		a.settings.WarnOnly = a.opts.warnOnly
	}
	if flags.Changed("show-commands") {
		a.settings.Output.Running = a.opts.showCommands
	}
	if flags.Changed("debug") {
		a.settings.Output.Debug = a.opts.debug
	}

	a.tool = cfg.Spec.ContainerTool
	if a.opts.tool != "" {
		a.tool = a.opts.tool
	}

	targets, err := a.buildTargets(cfg, flags.Changed("port"))
	if err != nil {
		return err
	}
	a.targets = targets
	if a.dialer == nil {
		a.dialer = connector.NewDialer(connector.WithSudoPrompt(a.settings.SudoPrompt))
	}
	return nil
}

func (a *app) buildTargets(cfg *config.GuestConfig, portChanged bool) ([]target, error) {
	var guests []string
	if a.opts.guest != "" {
		if strings.ContainsAny(a.opts.guest, " '\"") {
			return nil, fmt.Errorf("invalid guest '%s': must not contain spaces or quotes", a.opts.guest)
		}
		guests = []string{a.opts.guest}
	}

	if a.opts.local {
		return []target{{guests: guests}}, nil
	}

	byName := make(map[string]config.HostSpec, len(cfg.Spec.Hosts))
	for _, h := range cfg.Spec.Hosts {
		byName[h.Name] = h
	}
	var hosts []*connector.BaseHost
	if len(a.opts.hosts) == 0 {
		for _, h := range cfg.Spec.Hosts {
			hosts = append(hosts, h.ToHost())
		}
	}
	for _, name := range a.opts.hosts {
		if spec, ok := byName[name]; ok {
			hosts = append(hosts, spec.ToHost())
			continue
		}
		h := connector.NewHost()
		h.SetName(name)
		h.SetAddress(name)
		hosts = append(hosts, h)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no hosts given: use --host, --local or a config file with hosts")
	}

	targets := make([]target, 0, len(hosts))
	for _, h := range hosts {
		if a.opts.user != "" {
			h.SetUser(a.opts.user)
		}
		if a.opts.password != "" {
			h.SetPassword(a.opts.password)
		}
		if a.opts.keyPath != "" {
			h.SetPrivateKeyPath(a.opts.keyPath)
		}
		if portChanged {
			h.SetPort(a.opts.port)
		}
		if h.GetUser() == "" {
			h.SetUser("root")
		}
		keyPath, err := util.ExpandHome(h.GetPrivateKeyPath())
		if err != nil {
			return nil, err
		}
		h.SetPrivateKeyPath(keyPath)
		t := target{host: h, guests: h.GetGuests()}
		if guests != nil {
			t.guests = guests
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// action is run once per host, or once per guest inside a guest scope.
type action func(ctx context.Context, r *runner.Runner) error

// forEach runs fn on every target in order. Failures are logged and the
// remaining targets still run; the returned error summarizes them.
func (a *app) forEach(ctx context.Context, fn action) error {
	pool := connector.NewPool(a.dialer, logger.Log.WithField(common.LogFieldApp, common.AppName))
	defer pool.Close()

	var failed []string
	for _, t := range a.targets {
		name, conn, err := a.open(ctx, pool, t)
		if err != nil {
			logger.Log.ErrorfHost(name, err, "failed to open connection")
			failed = append(failed, name)
			continue
		}
		r := runner.New(conn, name, a.settings, nil)
		start := time.Now()

		if len(t.guests) == 0 {
			if err := fn(ctx, r); err != nil {
				logger.Log.ErrorfHost(name, err, "command failed")
				failed = append(failed, name)
			}
			logger.Log.DebugfHost(name, "done in %s", xmtime.Since(start))
			continue
		}
		for _, g := range t.guests {
			if err := guest.Scope(ctx, r, g, fn, guest.WithTool(a.tool)); err != nil {
				logger.Log.ForGuest(name, g).WithError(err).Error("command failed")
				failed = append(failed, name+"/"+g)
			}
		}
		logger.Log.DebugfHost(name, "done in %s", xmtime.Since(start))
	}
	if len(failed) > 0 {
		return errors.Errorf("failed on %d target(s): %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func (a *app) open(ctx context.Context, pool *connector.Pool, t target) (string, connector.Executor, error) {
	if t.host == nil {
		conn := connector.NewLocalConnection()
		conn.Password = a.opts.password
		conn.SudoPrompt = a.settings.SudoPrompt
		return localHostName, conn, nil
	}
	conn, err := pool.Get(ctx, t.host)
	if err != nil {
		return t.host.ID(), nil, err
	}
	return t.host.ID(), conn, nil
}

func parseMode(s string) (os.FileMode, error) {
	if s == "" {
		return 0, nil
	}
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil || m > 0o7777 {
		return 0, errors.Errorf("invalid mode %q: expected an octal permission such as 0644", s)
	}
	return os.FileMode(m), nil
}

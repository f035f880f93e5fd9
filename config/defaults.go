package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mensylisir/xmguest/common"
	"github.com/mensylisir/xmguest/connector"
	"github.com/mensylisir/xmguest/runner"
)

const (
	DefaultLogLevel    = "info"
	DefaultHostTimeout = 30 * time.Second
)

// SetDefaults fills unset fields of cfg in place.
func SetDefaults(cfg *GuestConfig) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = APIVersion
	}
	if cfg.Kind == "" {
		cfg.Kind = Kind
	}
	if cfg.Spec == nil {
		cfg.Spec = &Spec{}
	}
	spec := cfg.Spec
	if spec.ContainerTool == "" {
		spec.ContainerTool = common.DefaultContainerTool
	}
	if spec.Log.Level == "" {
		spec.Log.Level = DefaultLogLevel
	}
	for i := range spec.Hosts {
		if spec.Hosts[i].Port == 0 {
			spec.Hosts[i].Port = common.DefaultSSHPort
		}
		if spec.Hosts[i].Timeout == 0 {
			spec.Hosts[i].Timeout = DefaultHostTimeout
		}
	}
}

// ToRunnerSettings overlays the configured values on runner.DefaultSettings.
func (s SettingsSpec) ToRunnerSettings() runner.Settings {
	out := runner.DefaultSettings()
	if s.Shell != "" {
		out.Shell = s.Shell
	}
	if s.UseShell != nil {
		out.UseShell = *s.UseShell
	}
	if s.SudoPrefix != "" {
		out.SudoPrefix = s.SudoPrefix
	}
	if s.SudoPrompt != "" {
		out.SudoPrompt = s.SudoPrompt
	}
	out.SudoUser = s.SudoUser
	out.Cwd = s.Cwd
	out.Path = s.Path
	if s.PathBehavior != "" {
		out.PathBehavior = common.PathBehavior(s.PathBehavior)
	}
	out.CommandPrefixes = append([]string(nil), s.CommandPrefixes...)
	if len(s.ShellEnv) > 0 {
		out.ShellEnv = make(map[string]string, len(s.ShellEnv))
		for k, v := range s.ShellEnv {
			out.ShellEnv[k] = v
		}
	}
	out.WarnOnly = s.WarnOnly
	if s.PTY != nil {
		out.PTY = *s.PTY
	}
	if s.CombineStderr != nil {
		out.CombineStderr = *s.CombineStderr
	}
	if s.ShowCommands != nil {
		out.Output.Running = *s.ShowCommands
	}
	out.Output.Debug = s.Debug
	return out
}

func (h HostSpec) ToHost() *connector.BaseHost {
	host := connector.NewHost()
	host.SetName(h.Name)
	host.SetAddress(h.Address)
	if h.Port != 0 {
		host.SetPort(h.Port)
	}
	host.SetUser(h.User)
	host.SetPassword(h.Password)
	host.PrivateKey = h.PrivateKey
	host.SetPrivateKeyPath(h.PrivateKeyPath)
	if h.Timeout != 0 {
		host.SetTimeout(h.Timeout)
	}
	for _, g := range h.Guests {
		host.AddGuest(g)
	}
	return host
}

// LogLevel returns the configured level, falling back to info.
func (l LogSpec) LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

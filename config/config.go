package config

import (
	"time"
)

const (
	APIVersion = "xmguest.xiaoming.io/v1alpha1"
	Kind       = "GuestConfig"
)

// GuestConfig is the top-level configuration structure.
type GuestConfig struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Metadata   MetadataSpec `yaml:"metadata"`
	Spec       *Spec        `yaml:"spec"`
}

type MetadataSpec struct {
	Name string `yaml:"name"`
}

// Spec holds the execution settings, the container tool and the hosts to act on.
type Spec struct {
	ContainerTool string       `yaml:"containerTool,omitempty"` // e.g., vzctl or /usr/sbin/vzctl
	Settings      SettingsSpec `yaml:"settings,omitempty"`
	Hosts         []HostSpec   `yaml:"hosts"`
	Log           LogSpec      `yaml:"log,omitempty"`
}

// SettingsSpec mirrors runner.Settings. Pointer fields distinguish an
// explicit false from an unset value.
type SettingsSpec struct {
	Shell           string            `yaml:"shell,omitempty"`
	UseShell        *bool             `yaml:"useShell,omitempty"`
	SudoPrefix      string            `yaml:"sudoPrefix,omitempty"`
	SudoPrompt      string            `yaml:"sudoPrompt,omitempty"`
	SudoUser        string            `yaml:"sudoUser,omitempty"`
	Cwd             string            `yaml:"cwd,omitempty"`
	Path            string            `yaml:"path,omitempty"`
	PathBehavior    string            `yaml:"pathBehavior,omitempty"` // append, prepend or replace
	CommandPrefixes []string          `yaml:"commandPrefixes,omitempty"`
	ShellEnv        map[string]string `yaml:"shellEnv,omitempty"`
	WarnOnly        bool              `yaml:"warnOnly,omitempty"`
	PTY             *bool             `yaml:"pty,omitempty"`
	CombineStderr   *bool             `yaml:"combineStderr,omitempty"`
	ShowCommands    *bool             `yaml:"showCommands,omitempty"`
	Debug           bool              `yaml:"debug,omitempty"`
}

// HostSpec defines the configuration for a single OpenVZ host.
type HostSpec struct {
	Name           string        `yaml:"name"`
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port,omitempty"` // Default to 22 if not specified by user
	User           string        `yaml:"user"`
	Password       string        `yaml:"password,omitempty"`
	PrivateKey     string        `yaml:"privateKey,omitempty"`
	PrivateKeyPath string        `yaml:"privateKeyPath,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	Guests         []string      `yaml:"guests,omitempty"` // container names or CTIDs
}

type LogSpec struct {
	Dir     string `yaml:"dir,omitempty"`
	Level   string `yaml:"level,omitempty"`
	Verbose bool   `yaml:"verbose,omitempty"`
}

package runner

import (
	"github.com/mensylisir/xmguest/common"
)

// OutputSettings selects the diagnostic line printed before each command.
type OutputSettings struct {
	// Running prints the command as requested.
	Running bool `yaml:"running,omitempty" json:"running,omitempty"`
	// Debug prints the command as executed, after wrapping. Takes precedence over Running.
	Debug bool `yaml:"debug,omitempty" json:"debug,omitempty"`
}

// Settings is the execution environment consulted when building and
// running a command. Runners hand out copies; mutating a copy never
// affects the runner it came from.
type Settings struct {
	Shell           string              `yaml:"shell,omitempty" json:"shell,omitempty"`
	UseShell        bool                `yaml:"useShell" json:"useShell"`
	SudoPrefix      string              `yaml:"sudoPrefix,omitempty" json:"sudoPrefix,omitempty"`
	SudoPrompt      string              `yaml:"sudoPrompt,omitempty" json:"sudoPrompt,omitempty"`
	SudoUser        string              `yaml:"sudoUser,omitempty" json:"sudoUser,omitempty"`
	Cwd             string              `yaml:"cwd,omitempty" json:"cwd,omitempty"`
	Path            string              `yaml:"path,omitempty" json:"path,omitempty"`
	PathBehavior    common.PathBehavior `yaml:"pathBehavior,omitempty" json:"pathBehavior,omitempty"`
	CommandPrefixes []string            `yaml:"commandPrefixes,omitempty" json:"commandPrefixes,omitempty"`
	ShellEnv        map[string]string   `yaml:"shellEnv,omitempty" json:"shellEnv,omitempty"`
	WarnOnly        bool                `yaml:"warnOnly,omitempty" json:"warnOnly,omitempty"`
	PTY             bool                `yaml:"pty" json:"pty"`
	CombineStderr   bool                `yaml:"combineStderr" json:"combineStderr"`
	Output          OutputSettings      `yaml:"output,omitempty" json:"output,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		Shell:         common.DefaultShell,
		UseShell:      true,
		SudoPrefix:    common.DefaultSudoPrefix,
		SudoPrompt:    common.DefaultSudoPrompt,
		PathBehavior:  common.PathAppend,
		PTY:           true,
		CombineStderr: true,
		Output:        OutputSettings{Running: true},
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	if s.CommandPrefixes != nil {
		out.CommandPrefixes = append([]string(nil), s.CommandPrefixes...)
	}
	if s.ShellEnv != nil {
		out.ShellEnv = make(map[string]string, len(s.ShellEnv))
		for k, v := range s.ShellEnv {
			out.ShellEnv[k] = v
		}
	}
	return out
}

// WithoutPrefixes drops cwd, path, env and command prefixes, leaving the
// shell and sudo configuration intact.
func (s Settings) WithoutPrefixes() Settings {
	out := s.Clone()
	out.Cwd = ""
	out.Path = ""
	out.CommandPrefixes = nil
	out.ShellEnv = nil
	return out
}

package runner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mensylisir/xmguest/common"
)

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")

// Escape backslash-escapes the characters that stay special inside a
// double-quoted shell string.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Quote single-quotes s for the shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Wrap builds the command line that is sent over the channel:
//
//	[sudoPrefix ]<shell> "<escaped command>"
//
// With shell disabled, here or in s.UseShell, the command is used bare.
// An empty sudoPrefix means no elevation.
func Wrap(s Settings, command string, shell bool, sudoPrefix string) string {
	return assemble(s, command, shell, sudoPrefix, Escape)
}

// InnerWrap assembles the same shape as Wrap without escaping the command,
// for command lines that are embedded in another quoted string.
func InnerWrap(s Settings, command string, shell bool, sudoPrefix string) string {
	return assemble(s, command, shell, sudoPrefix, nil)
}

func assemble(s Settings, command string, shell bool, sudoPrefix string, escape func(string) string) string {
	if !s.UseShell {
		shell = false
	}
	var b strings.Builder
	if sudoPrefix != "" {
		b.WriteString(sudoPrefix)
		b.WriteString(" ")
	}
	if !shell {
		b.WriteString(command)
		return b.String()
	}
	if escape != nil {
		command = escape(command)
	}
	b.WriteString(s.Shell)
	b.WriteString(" \"")
	b.WriteString(command)
	b.WriteString("\"")
	return b.String()
}

// SudoPrefix renders s.SudoPrefix with s.SudoPrompt and, when user is set,
// appends the -u argument. Numeric users are passed as #uid.
func SudoPrefix(s Settings, user string) string {
	prefix := strings.Replace(s.SudoPrefix, "%s", s.SudoPrompt, 1)
	if user == "" {
		return prefix
	}
	if isDigits(user) {
		user = "#" + user
	}
	return fmt.Sprintf("%s -u \"%s\" ", prefix, user)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// PrefixCommands prepends the working directory change and the configured
// command prefixes, joined with " && ".
func PrefixCommands(s Settings, command string) string {
	prefixes := make([]string, 0, len(s.CommandPrefixes)+1)
	if s.Cwd != "" {
		prefixes = append(prefixes, "cd "+s.Cwd+" >/dev/null")
	}
	prefixes = append(prefixes, s.CommandPrefixes...)
	if len(prefixes) == 0 {
		return command
	}
	return strings.Join(prefixes, " && ") + " && " + command
}

// PrefixEnvVars prepends an export of s.Path and s.ShellEnv. PATH comes
// first and is never escaped; other keys follow in sorted order.
func PrefixEnvVars(s Settings, command string) string {
	vars := make(map[string]string, len(s.ShellEnv)+1)
	if s.Path != "" {
		switch s.PathBehavior {
		case common.PathPrepend:
			vars["PATH"] = fmt.Sprintf(`"%s":$PATH`, s.Path)
		case common.PathReplace:
			vars["PATH"] = fmt.Sprintf(`"%s"`, s.Path)
		default:
			vars["PATH"] = fmt.Sprintf(`$PATH:"%s"`, s.Path)
		}
	}
	for k, v := range s.ShellEnv {
		vars[k] = v
	}
	if len(vars) == 0 {
		return command
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		if k != "PATH" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := vars["PATH"]; ok {
		keys = append([]string{"PATH"}, keys...)
	}

	exports := make([]string, 0, len(keys))
	for _, k := range keys {
		v := vars[k]
		if k != "PATH" {
			v = Escape(v)
		}
		exports = append(exports, fmt.Sprintf(`%s="%s"`, k, v))
	}
	return "export " + strings.Join(exports, " ") + " && " + command
}

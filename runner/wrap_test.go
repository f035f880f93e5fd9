package runner

import (
	"testing"

	"github.com/google/shlex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/xmguest/common"
)

var wrapSamples = []string{
	"echo hi",
	`echo "hi there"`,
	"echo $HOME",
	"echo `date`",
	`printf 'a\nb'`,
	`grep -r "pattern\\" file.txt`,
	"cd /tmp && ls -la | wc -l",
	"",
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`say "hi"`, `say \"hi\"`},
		{"$HOME", `\$HOME`},
		{"`id`", "\\`id\\`"},
		{`a\b`, `a\\b`},
		{`\"`, `\\\"`},
		{"it's", "it's"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Escape(tt.in), "Escape(%q)", tt.in)
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'/tmp/a b'`, Quote("/tmp/a b"))
	assert.Equal(t, `'it'\''s'`, Quote("it's"))
}

func TestWrap(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, `/bin/bash -l -c "echo hi"`, Wrap(s, "echo hi", true, ""))
	assert.Equal(t, `/bin/bash -l -c "echo \"\$HOME\""`, Wrap(s, `echo "$HOME"`, true, ""))
	assert.Equal(t, `sudo -S -p 'sudo password:'  /bin/bash -l -c "whoami"`,
		Wrap(s, "whoami", true, SudoPrefix(s, "")))
}

func TestInnerWrap(t *testing.T) {
	s := DefaultSettings()
	s.Shell = common.GuestShell

	assert.Equal(t, `/bin/bash -c "echo hi"`, InnerWrap(s, "echo hi", true, ""))
	assert.Equal(t, `/bin/bash -c "echo "$HOME""`, InnerWrap(s, `echo "$HOME"`, true, ""))
}

func TestWrapEqualsInnerWrapOfEscaped(t *testing.T) {
	s := DefaultSettings()
	prefixes := []string{"", SudoPrefix(s, ""), SudoPrefix(s, "deploy")}
	for _, c := range wrapSamples {
		for _, p := range prefixes {
			assert.Equal(t, Wrap(s, c, true, p), InnerWrap(s, Escape(c), true, p), "command %q prefix %q", c, p)
		}
	}
}

func TestWrapWithoutShell(t *testing.T) {
	s := DefaultSettings()
	prefix := SudoPrefix(s, "")
	for _, c := range wrapSamples {
		assert.Equal(t, c, Wrap(s, c, false, ""))
		assert.Equal(t, c, InnerWrap(s, c, false, ""))
		assert.Equal(t, prefix+" "+c, Wrap(s, c, false, prefix))
		assert.Equal(t, prefix+" "+c, InnerWrap(s, c, false, prefix))
	}

	s.UseShell = false
	assert.Equal(t, "echo hi", Wrap(s, "echo hi", true, ""))
	assert.Equal(t, "echo hi", InnerWrap(s, "echo hi", true, ""))
}

func TestWrapTokenStructure(t *testing.T) {
	s := DefaultSettings()
	for _, c := range wrapSamples {
		if c == "" {
			continue
		}
		tokens, err := shlex.Split(Wrap(s, c, true, ""))
		require.NoError(t, err, "command %q", c)
		require.Len(t, tokens, 4, "command %q", c)
		assert.Equal(t, []string{"/bin/bash", "-l", "-c"}, tokens[:3])
		assert.Equal(t, c, tokens[3], "shell sees the command unchanged")
	}

	tokens, err := shlex.Split(Wrap(s, "id", true, SudoPrefix(s, "deploy")))
	require.NoError(t, err)
	assert.Equal(t, []string{"sudo", "-S", "-p", "sudo password:", "-u", "deploy", "/bin/bash", "-l", "-c", "id"}, tokens)
}

func TestSudoPrefix(t *testing.T) {
	s := DefaultSettings()
	tests := []struct {
		name string
		mod  func(*Settings)
		user string
		want string
	}{
		{name: "no user", want: "sudo -S -p 'sudo password:' "},
		{name: "named user", user: "deploy", want: `sudo -S -p 'sudo password:'  -u "deploy" `},
		{name: "numeric user", user: "1000", want: `sudo -S -p 'sudo password:'  -u "#1000" `},
		{
			name: "guest template",
			mod:  func(s *Settings) { s.SudoPrefix = common.GuestSudoPrefix },
			want: `sudo -S -p "sudo password:" `,
		},
		{
			name: "custom prompt",
			mod:  func(s *Settings) { s.SudoPrompt = "pw:" },
			want: "sudo -S -p 'pw:' ",
		},
		{
			name: "template without placeholder",
			mod:  func(s *Settings) { s.SudoPrefix = "sudo -n " },
			want: "sudo -n ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := s.Clone()
			if tt.mod != nil {
				tt.mod(&cfg)
			}
			assert.Equal(t, tt.want, SudoPrefix(cfg, tt.user))
		})
	}
}

func TestPrefixCommands(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, "ls", PrefixCommands(s, "ls"))

	s.Cwd = "/srv/app"
	assert.Equal(t, "cd /srv/app >/dev/null && ls", PrefixCommands(s, "ls"))

	s.CommandPrefixes = []string{"source venv/bin/activate", "umask 022"}
	assert.Equal(t, "cd /srv/app >/dev/null && source venv/bin/activate && umask 022 && ls", PrefixCommands(s, "ls"))

	s.Cwd = ""
	assert.Equal(t, "source venv/bin/activate && umask 022 && ls", PrefixCommands(s, "ls"))
}

func TestPrefixEnvVars(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Settings)
		want string
	}{
		{name: "nothing", want: "make"},
		{
			name: "append path",
			mod:  func(s *Settings) { s.Path = "/opt/bin" },
			want: `export PATH="$PATH:"/opt/bin"" && make`,
		},
		{
			name: "prepend path",
			mod:  func(s *Settings) { s.Path = "/opt/bin"; s.PathBehavior = common.PathPrepend },
			want: `export PATH=""/opt/bin":$PATH" && make`,
		},
		{
			name: "replace path",
			mod:  func(s *Settings) { s.Path = "/opt/bin"; s.PathBehavior = common.PathReplace },
			want: `export PATH=""/opt/bin"" && make`,
		},
		{
			name: "env sorted and escaped, path first",
			mod: func(s *Settings) {
				s.Path = "/opt/bin"
				s.ShellEnv = map[string]string{"ZED": "1", "GREETING": `say "hi" $USER`}
			},
			want: `export PATH="$PATH:"/opt/bin"" GREETING="say \"hi\" \$USER" ZED="1" && make`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			if tt.mod != nil {
				tt.mod(&s)
			}
			assert.Equal(t, tt.want, PrefixEnvVars(s, "make"))
		})
	}
}

func TestSettingsClone(t *testing.T) {
	s := DefaultSettings()
	s.CommandPrefixes = []string{"a"}
	s.ShellEnv = map[string]string{"K": "v"}

	c := s.Clone()
	c.CommandPrefixes[0] = "b"
	c.ShellEnv["K"] = "changed"
	assert.Equal(t, "a", s.CommandPrefixes[0])
	assert.Equal(t, "v", s.ShellEnv["K"])

	stripped := s.WithoutPrefixes()
	assert.Empty(t, stripped.CommandPrefixes)
	assert.Empty(t, stripped.ShellEnv)
	assert.Equal(t, s.Shell, stripped.Shell)
}

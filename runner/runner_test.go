package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/xmguest/connector"
)

type recordingStrategy struct {
	name string
	reqs []Request
}

func (s *recordingStrategy) RunCommand(ctx context.Context, r *Runner, req Request) (*Result, error) {
	s.reqs = append(s.reqs, req)
	return &Result{Stdout: s.name, Command: req.Command}, nil
}

func TestRunner_RunUsesHostStrategy(t *testing.T) {
	conn := newFakeConn()
	r, _ := newTestRunner(conn, nil)

	res, err := r.Run(context.Background(), "echo hi")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.False(t, res.Failed)
	assert.Equal(t, "ok", res.Stdout)
	assert.Equal(t, 0, res.ReturnCode)
	assert.Equal(t, "echo hi", res.Command)
	assert.Equal(t, `/bin/bash -l -c "echo hi"`, res.Executed)

	call := conn.lastCall()
	assert.Equal(t, `/bin/bash -l -c "echo hi"`, call.Cmd)
	assert.Equal(t, connector.ExecOptions{PTY: true, CombineStderr: true}, call.Opts)
}

func TestRunner_RunOptions(t *testing.T) {
	conn := newFakeConn()
	r, _ := newTestRunner(conn, nil)

	_, err := r.Run(context.Background(), "ls", WithShell(false), WithPTY(false), WithCombineStderr(false))
	require.NoError(t, err)
	call := conn.lastCall()
	assert.Equal(t, "ls", call.Cmd)
	assert.Equal(t, connector.ExecOptions{}, call.Opts)
}

func TestRunner_Sudo(t *testing.T) {
	conn := newFakeConn()
	r, _ := newTestRunner(conn, nil)
	ctx := context.Background()

	_, err := r.Sudo(ctx, "whoami")
	require.NoError(t, err)
	assert.Equal(t, `sudo -S -p 'sudo password:'  /bin/bash -l -c "whoami"`, conn.lastCall().Cmd)

	_, err = r.Sudo(ctx, "whoami", AsUser("1000"))
	require.NoError(t, err)
	assert.Equal(t, `sudo -S -p 'sudo password:'  -u "#1000"  /bin/bash -l -c "whoami"`, conn.lastCall().Cmd)

	withUser := r.WithSettings(func(s *Settings) { s.SudoUser = "deploy" })
	_, err = withUser.Sudo(ctx, "whoami")
	require.NoError(t, err)
	assert.Equal(t, `sudo -S -p 'sudo password:'  -u "deploy"  /bin/bash -l -c "whoami"`, conn.lastCall().Cmd)
}

func TestRunner_AppliesPrefixes(t *testing.T) {
	conn := newFakeConn()
	r, _ := newTestRunner(conn, func(s *Settings) {
		s.Cwd = "/srv"
		s.ShellEnv = map[string]string{"A": "1"}
	})

	_, err := r.Run(context.Background(), "make")
	require.NoError(t, err)
	assert.Equal(t, `/bin/bash -l -c "cd /srv >/dev/null && export A=\"1\" && make"`, conn.lastCall().Cmd)
}

func TestRunner_NonzeroReturnsCommandError(t *testing.T) {
	conn := newFakeConn()
	conn.respond = func(cmd string) (string, string, int, error) { return "out", "boom", 2, nil }
	r, _ := newTestRunner(conn, nil)

	res, err := r.Run(context.Background(), "false")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Failed)
	assert.False(t, res.Succeeded())
	assert.Equal(t, 2, res.ReturnCode)
	assert.Equal(t, "boom", res.Stderr)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "run", cmdErr.Verb)
	assert.Equal(t, 2, cmdErr.ReturnCode)
	assert.Equal(t, "run() received nonzero return code 2 while executing!\n\nRequested: false\nExecuted: /bin/bash -l -c \"false\"", err.Error())
}

func TestRunner_WarnOnly(t *testing.T) {
	conn := newFakeConn()
	conn.respond = func(cmd string) (string, string, int, error) { return "", "", 1, nil }
	r, hook := newTestRunner(conn, func(s *Settings) { s.WarnOnly = true })

	res, err := r.Sudo(context.Background(), "false")
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Equal(t, 1, res.ReturnCode)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "sudo() received nonzero return code 1 while executing 'false'!", entry.Message)
}

func TestRunner_TransportErrorCollapses(t *testing.T) {
	cause := errors.New("session closed")
	conn := newFakeConn()
	conn.respond = func(cmd string) (string, string, int, error) { return "", "", 0, cause }
	r, _ := newTestRunner(conn, nil)

	res, err := r.Run(context.Background(), "uptime")
	require.Error(t, err)
	assert.True(t, res.Failed)
	assert.Equal(t, -1, res.ReturnCode)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Cause: session closed")
}

func TestRunner_Announce(t *testing.T) {
	tests := []struct {
		name   string
		output OutputSettings
		want   string
	}{
		{name: "debug shows wrapped", output: OutputSettings{Debug: true, Running: true}, want: `run: /bin/bash -l -c "id"`},
		{name: "running shows given", output: OutputSettings{Running: true}, want: "run: id"},
		{name: "silent", output: OutputSettings{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, hook := newTestRunner(newFakeConn(), func(s *Settings) { s.Output = tt.output })
			_, err := r.Run(context.Background(), "id")
			require.NoError(t, err)
			if tt.want == "" {
				assert.Empty(t, hook.AllEntries())
				return
			}
			require.Len(t, hook.AllEntries(), 1)
			assert.Equal(t, tt.want, hook.LastEntry().Message)
			assert.Equal(t, "node1", hook.LastEntry().Data["Host"])
		})
	}
}

func TestRunner_InstallRestore(t *testing.T) {
	r, _ := newTestRunner(newFakeConn(), nil)
	before := r.Strategy()
	assert.Same(t, HostStrategy(), before)

	s := &recordingStrategy{name: "patched"}
	restore := r.Install(s)
	assert.Same(t, s, r.Strategy())

	res, err := r.Run(context.Background(), "ls")
	require.NoError(t, err)
	assert.Equal(t, "patched", res.Stdout)
	require.Len(t, s.reqs, 1)
	assert.Equal(t, Request{Command: "ls", Shell: true, PTY: true, CombineStderr: true}, s.reqs[0])

	restore()
	assert.Same(t, before, r.Strategy())
	restore()
	assert.Same(t, before, r.Strategy(), "restore is idempotent")
}

func TestRunner_NestedInstallRestoresInOrder(t *testing.T) {
	r, _ := newTestRunner(newFakeConn(), nil)
	outer := &recordingStrategy{name: "outer"}
	inner := &recordingStrategy{name: "inner"}

	restoreOuter := r.Install(outer)
	restoreInner := r.Install(inner)
	assert.Same(t, inner, r.Strategy())

	restoreInner()
	assert.Same(t, outer, r.Strategy())
	restoreOuter()
	assert.Same(t, HostStrategy(), r.Strategy())
}

func TestRunner_OutOfOrderRestore(t *testing.T) {
	r, hook := newTestRunner(newFakeConn(), nil)
	restoreOuter := r.Install(&recordingStrategy{name: "outer"})
	restoreInner := r.Install(&recordingStrategy{name: "inner"})

	restoreOuter()
	assert.Same(t, HostStrategy(), r.Strategy(), "outer restore drops everything above it")

	restoreInner()
	assert.Same(t, HostStrategy(), r.Strategy())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestRunner_ChildRunners(t *testing.T) {
	conn := newFakeConn()
	r, _ := newTestRunner(conn, nil)
	patched := &recordingStrategy{name: "child"}

	child := r.With(patched)
	assert.Same(t, patched, child.Strategy())
	assert.Same(t, HostStrategy(), r.Strategy(), "parent untouched")

	host := child.Host()
	assert.Same(t, HostStrategy(), host.Strategy())

	// Settings children share the strategy stack of their parent.
	cd := child.WithSettings(func(s *Settings) { s.Cwd = "/tmp" })
	assert.Same(t, patched, cd.Strategy())
	assert.Equal(t, "/tmp", cd.Settings().Cwd)
	assert.Equal(t, "", child.Settings().Cwd)

	restore := cd.Install(HostStrategy())
	assert.Same(t, HostStrategy(), child.Strategy())
	restore()
	assert.Same(t, patched, child.Strategy())
}

func TestRunner_SettingsAreCopies(t *testing.T) {
	r, _ := newTestRunner(newFakeConn(), func(s *Settings) { s.ShellEnv = map[string]string{"K": "v"} })
	s := r.Settings()
	s.ShellEnv["K"] = "changed"
	assert.Equal(t, "v", r.Settings().ShellEnv["K"])
}

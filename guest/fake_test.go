package guest

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mensylisir/xmguest/connector"
	"github.com/mensylisir/xmguest/runner"
)

// fakeConn answers each command from responses, keyed by a substring of
// the executed command. Unmatched commands succeed with no output.
type fakeConn struct {
	mu        sync.Mutex
	cmds      []string
	opts      []connector.ExecOptions
	responses map[string]fakeResponse
	files     map[string][]byte
}

type fakeResponse struct {
	stdout string
	stderr string
	code   int
	err    error
}

var _ connector.Connection = (*fakeConn)(nil)

func newFakeConn() *fakeConn {
	return &fakeConn{responses: make(map[string]fakeResponse), files: make(map[string][]byte)}
}

func (f *fakeConn) Exec(ctx context.Context, cmd string, opts connector.ExecOptions) ([]byte, []byte, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	f.opts = append(f.opts, opts)
	for match, resp := range f.responses {
		if strings.Contains(cmd, match) {
			return []byte(resp.stdout), []byte(resp.stderr), resp.code, resp.err
		}
	}
	return nil, nil, 0, nil
}

func (f *fakeConn) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

func (f *fakeConn) last() (string, connector.ExecOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cmds[len(f.cmds)-1], f.opts[len(f.opts)-1]
}

func (f *fakeConn) DownloadFile(ctx context.Context, remotePath string, localPath string) error {
	return os.ErrNotExist
}

func (f *fakeConn) UploadFile(ctx context.Context, localPath string, remotePath string) error {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[remotePath] = content
	return nil
}

func (f *fakeConn) Fetch(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	return nil, os.ErrNotExist
}

func (f *fakeConn) Scp(ctx context.Context, localReader io.Reader, remotePath string, mode os.FileMode) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, localReader); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[remotePath] = buf.Bytes()
	return nil
}

func (f *fakeConn) StatRemote(ctx context.Context, remotePath string) (os.FileInfo, error) {
	return nil, os.ErrNotExist
}

func (f *fakeConn) MkDirAll(ctx context.Context, remotePath string, mode os.FileMode) error {
	return nil
}

func (f *fakeConn) Chmod(ctx context.Context, remotePath string, mode os.FileMode) error {
	return nil
}

func (f *fakeConn) Close() error {
	return nil
}

func newTestRunner(conn connector.Executor, modify func(*runner.Settings)) (*runner.Runner, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	s := runner.DefaultSettings()
	if modify != nil {
		modify(&s)
	}
	return runner.New(conn, "node1", s, logrus.NewEntry(log)), hook
}

package runner

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mensylisir/xmguest/connector"
)

type execCall struct {
	Cmd  string
	Opts connector.ExecOptions
}

type fakeConn struct {
	mu      sync.Mutex
	calls   []execCall
	respond func(cmd string) (stdout, stderr string, code int, err error)
	files   map[string][]byte
	modes   map[string]os.FileMode
}

var _ connector.Connection = (*fakeConn)(nil)

func newFakeConn() *fakeConn {
	return &fakeConn{files: make(map[string][]byte), modes: make(map[string]os.FileMode)}
}

func (f *fakeConn) Exec(ctx context.Context, cmd string, opts connector.ExecOptions) ([]byte, []byte, int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, execCall{Cmd: cmd, Opts: opts})
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return []byte("ok\n"), nil, 0, nil
	}
	stdout, stderr, code, err := respond(cmd)
	return []byte(stdout), []byte(stderr), code, err
}

func (f *fakeConn) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Cmd)
	}
	return out
}

func (f *fakeConn) lastCall() execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeConn) DownloadFile(ctx context.Context, remotePath string, localPath string) error {
	f.mu.Lock()
	content, ok := f.files[remotePath]
	f.mu.Unlock()
	if !ok {
		return os.ErrNotExist
	}
	return os.WriteFile(localPath, content, 0644)
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
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[remotePath]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (f *fakeConn) Scp(ctx context.Context, localReader io.Reader, remotePath string, mode os.FileMode) error {
	content, err := io.ReadAll(localReader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[remotePath] = content
	f.modes[remotePath] = mode
	return nil
}

func (f *fakeConn) StatRemote(ctx context.Context, remotePath string) (os.FileInfo, error) {
	return nil, os.ErrNotExist
}

func (f *fakeConn) MkDirAll(ctx context.Context, remotePath string, mode os.FileMode) error {
	return nil
}

func (f *fakeConn) Chmod(ctx context.Context, remotePath string, mode os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[remotePath] = mode
	return nil
}

func (f *fakeConn) Close() error {
	return nil
}

// execOnly has no file operations.
type execOnly struct {
	connector.Executor
}

func newTestRunner(conn connector.Executor, modify func(*Settings)) (*Runner, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	s := DefaultSettings()
	if modify != nil {
		modify(&s)
	}
	return New(conn, "node1", s, logrus.NewEntry(log)), hook
}

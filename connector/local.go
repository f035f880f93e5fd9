package connector

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmguest/common"
	"github.com/mensylisir/xmguest/file"
)

var _ Connection = (*LocalConnection)(nil)

// LocalConnection runs commands and file operations on the local machine.
// PTY requests are ignored.
type LocalConnection struct {
	Password   string
	SudoPrompt string
	// Shell is the interpreter the command line is handed to; defaults to /bin/sh.
	Shell string
}

func NewLocalConnection() *LocalConnection {
	return &LocalConnection{Shell: "/bin/sh", SudoPrompt: common.DefaultSudoPrompt}
}

func (l *LocalConnection) Exec(ctx context.Context, cmd string, opts ExecOptions) (stdout []byte, stderr []byte, exitCode int, err error) {
	shell := l.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	c := exec.CommandContext(ctx, shell, "-c", cmd)
	c.WaitDelay = 250 * time.Millisecond

	// Stdin stays /dev/null unless a password may have to be typed.
	var responder *promptResponder
	var stdin io.WriteCloser
	if l.Password != "" {
		stdin, err = c.StdinPipe()
		if err != nil {
			return nil, nil, -1, errors.Wrap(err, "failed to get stdin pipe for local exec")
		}
		responder = newPromptResponder(stdin, l.Password, []string{l.SudoPrompt, "Password:"})
	}
	outBuf := &lockedBuffer{}
	errBuf := outBuf
	if !opts.CombineStderr {
		errBuf = &lockedBuffer{}
	}
	c.Stdout = &promptWatcher{dst: outBuf, responder: responder}
	c.Stderr = &promptWatcher{dst: errBuf, responder: responder}

	runErr := c.Run()
	if stdin != nil {
		_ = stdin.Close()
	}

	stdout = outBuf.Bytes()
	if !opts.CombineStderr {
		stderr = errBuf.Bytes()
	}
	if runErr == nil {
		return stdout, stderr, 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stdout, stderr, -1, errors.Wrap(ctxErr, "command execution cancelled")
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return stdout, stderr, exitErr.ExitCode(), nil
	}
	return stdout, stderr, -1, errors.Wrapf(runErr, "failed to run local command: %s", cmd)
}

func (l *LocalConnection) DownloadFile(ctx context.Context, remotePath string, localPath string) error {
	src, err := l.Fetch(ctx, remotePath)
	if err != nil {
		return err
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", remotePath)
	}
	return file.WriteFile(localPath, content, 0)
}

func (l *LocalConnection) UploadFile(ctx context.Context, localPath string, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open local file %s", localPath)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat local file %s", localPath)
	}
	return l.Scp(ctx, src, remotePath, info.Mode().Perm())
}

func (l *LocalConnection) Fetch(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(remotePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", remotePath)
	}
	return f, nil
}

func (l *LocalConnection) Scp(ctx context.Context, localReader io.Reader, remotePath string, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mode == 0 {
		mode = common.FileMode0644
	}
	if err := l.MkDirAll(ctx, filepath.Dir(remotePath), common.FileMode0755); err != nil {
		return err
	}
	dst, err := os.OpenFile(remotePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", remotePath)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, localReader); err != nil {
		return errors.Wrapf(err, "failed to copy content to %s", remotePath)
	}
	return dst.Chmod(mode.Perm())
}

func (l *LocalConnection) StatRemote(ctx context.Context, remotePath string) (os.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(remotePath)
	if os.IsNotExist(err) {
		return nil, os.ErrNotExist
	}
	return info, err
}

func (l *LocalConnection) MkDirAll(ctx context.Context, remotePath string, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mode == 0 {
		mode = common.FileMode0755
	}
	if err := os.MkdirAll(remotePath, mode.Perm()); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", remotePath)
	}
	return nil
}

func (l *LocalConnection) Chmod(ctx context.Context, remotePath string, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Wrapf(os.Chmod(remotePath, mode.Perm()), "failed to chmod %s", remotePath)
}

func (l *LocalConnection) Close() error {
	return nil
}

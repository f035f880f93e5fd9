package connector

import (
	"context"
	"io"
	"os"
	"time"
)

// ExecOptions controls how a single command is run on the channel.
type ExecOptions struct {
	// PTY requests a pseudo-terminal for the session.
	PTY bool
	// CombineStderr interleaves stderr into stdout; the returned stderr is empty.
	CombineStderr bool
}

type Executor interface {
	Exec(ctx context.Context, cmd string, opts ExecOptions) (stdout []byte, stderr []byte, exitCode int, err error)
}

type FileOperator interface {
	DownloadFile(ctx context.Context, remotePath string, localPath string) error
	UploadFile(ctx context.Context, localPath string, remotePath string) error
	Fetch(ctx context.Context, remotePath string) (io.ReadCloser, error)
	Scp(ctx context.Context, localReader io.Reader, remotePath string, mode os.FileMode) error
	StatRemote(ctx context.Context, remotePath string) (os.FileInfo, error)
	MkDirAll(ctx context.Context, remotePath string, mode os.FileMode) error
	Chmod(ctx context.Context, remotePath string, mode os.FileMode) error
}

type Connection interface {
	Executor
	FileOperator
	Close() error
}

type Host interface {
	GetName() string
	GetAddress() string
	GetPort() int
	GetUser() string
	GetPassword() string
	GetPrivateKey() string
	GetPrivateKeyPath() string
	GetTimeout() time.Duration
	// GetGuests lists the containers configured for this host.
	GetGuests() []string
	Validate() error
	ID() string
}

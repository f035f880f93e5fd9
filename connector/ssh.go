package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/mensylisir/xmguest/common"
	"github.com/mensylisir/xmguest/file"
	"github.com/mensylisir/xmguest/logger"
)

type Config struct {
	Username    string
	Password    string
	Address     string
	Port        int
	PrivateKey  string
	KeyFile     string
	AgentSocket string
	Timeout     time.Duration
	Bastion     string
	BastionPort int
	BastionUser string
	// SudoPrompt is the prompt text answered with Password, in addition to
	// the stock sudo and "Password:" prompts.
	SudoPrompt string
}

const socketEnvPrefix = "env:"

var _ Connection = (*connection)(nil)

type connection struct {
	mu         sync.Mutex
	sftpclient *sftp.Client
	sshclient  *ssh.Client
	config     Config

	connCtx    context.Context
	connCancel context.CancelFunc

	agentSocketConn net.Conn
}

func NewConnection(cfg Config) (Connection, error) {
	var err error
	cfg, err = validateConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to validate ssh connection parameters")
	}

	authMethods := make([]ssh.AuthMethod, 0)
	conn := &connection{config: cfg}

	if len(cfg.Password) > 0 {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}

	if len(cfg.PrivateKey) > 0 {
		signer, parseErr := ssh.ParsePrivateKey([]byte(cfg.PrivateKey))
		if parseErr != nil {
			return nil, errors.Wrap(parseErr, "the given SSH key could not be parsed")
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if len(cfg.AgentSocket) > 0 {
		addr := cfg.AgentSocket
		if strings.HasPrefix(cfg.AgentSocket, socketEnvPrefix) {
			envName := strings.TrimPrefix(cfg.AgentSocket, socketEnvPrefix)
			if envAddr := os.Getenv(envName); len(envAddr) > 0 {
				addr = envAddr
			} else {
				logger.Log.Warnf("SSH Agent environment variable %s not found, using original socket string %s", envName, addr)
			}
		}

		var dialErr error
		conn.agentSocketConn, dialErr = net.Dial("unix", addr)
		if dialErr != nil {
			return nil, errors.Wrapf(dialErr, "could not open SSH agent socket %q", addr)
		}

		agentClient := agent.NewClient(conn.agentSocketConn)
		signers, signersErr := agentClient.Signers()
		if signersErr != nil {
			conn.cleanupAgentSocket()
			return nil, errors.Wrap(signersErr, "error when creating signer for SSH agent")
		}
		authMethods = append(authMethods, ssh.PublicKeys(signers...))
	}

	targetHost := cfg.Address
	targetPort := cfg.Port
	effectiveUser := cfg.Username
	if cfg.Bastion != "" {
		targetHost = cfg.Bastion
		targetPort = cfg.BastionPort
		effectiveUser = cfg.BastionUser
	}

	endpoint := net.JoinHostPort(targetHost, strconv.Itoa(targetPort))
	client, err := ssh.Dial("tcp", endpoint, clientConfig(effectiveUser, cfg.Timeout, authMethods))
	if err != nil {
		conn.cleanupAgentSocket()
		return nil, errors.Wrapf(err, "could not establish connection to %s", endpoint)
	}

	if cfg.Bastion != "" {
		endpointBehindBastion := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
		connToTarget, dialErr := client.Dial("tcp", endpointBehindBastion)
		if dialErr != nil {
			_ = client.Close()
			conn.cleanupAgentSocket()
			return nil, errors.Wrapf(dialErr, "could not establish connection to target %s via bastion", endpointBehindBastion)
		}

		ncc, chans, reqs, clientConnErr := ssh.NewClientConn(connToTarget, endpointBehindBastion,
			clientConfig(cfg.Username, cfg.Timeout, authMethods))
		if clientConnErr != nil {
			_ = connToTarget.Close()
			_ = client.Close()
			conn.cleanupAgentSocket()
			return nil, errors.Wrapf(clientConnErr, "failed to create new SSH client connection to %s via bastion", endpointBehindBastion)
		}
		client = ssh.NewClient(ncc, chans, reqs)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		conn.cleanupAgentSocket()
		return nil, errors.Wrap(err, "failed to create SFTP client")
	}

	conn.sshclient = client
	conn.sftpclient = sftpClient
	conn.connCtx, conn.connCancel = context.WithCancel(context.Background())

	return conn, nil
}

func clientConfig(user string, timeout time.Duration, auth []ssh.AuthMethod) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            user,
		Timeout:         timeout,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
}

func (c *connection) cleanupAgentSocket() {
	if c.agentSocketConn != nil {
		_ = c.agentSocketConn.Close()
		c.agentSocketConn = nil
	}
}

func validateConfig(cfg Config) (Config, error) {
	if len(cfg.Username) == 0 {
		return cfg, errors.New("no username specified for SSH connection")
	}
	if len(cfg.Address) == 0 {
		return cfg, errors.New("no address specified for SSH connection")
	}
	if len(cfg.Password) == 0 && len(cfg.PrivateKey) == 0 && len(cfg.KeyFile) == 0 && len(cfg.AgentSocket) == 0 {
		return cfg, errors.New("must specify at least one of password, private key, keyfile or agent socket")
	}

	if len(cfg.PrivateKey) == 0 && len(cfg.KeyFile) > 0 {
		content, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return cfg, errors.Wrapf(err, "failed to read keyfile %q", cfg.KeyFile)
		}
		cfg.PrivateKey = string(content)
	}

	if cfg.Port <= 0 {
		cfg.Port = common.DefaultSSHPort
	}
	if cfg.Bastion != "" {
		if cfg.BastionPort <= 0 {
			cfg.BastionPort = common.DefaultSSHPort
		}
		if cfg.BastionUser == "" {
			cfg.BastionUser = cfg.Username
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SudoPrompt == "" {
		cfg.SudoPrompt = common.DefaultSudoPrompt
	}
	return cfg, nil
}

func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sshclient == nil && c.sftpclient == nil && c.agentSocketConn == nil {
		return nil
	}

	if c.connCancel != nil {
		c.connCancel()
	}

	var combinedErrors []string
	if c.sftpclient != nil {
		if err := c.sftpclient.Close(); err != nil {
			combinedErrors = append(combinedErrors, fmt.Sprintf("sftp close error: %v", err))
		}
		c.sftpclient = nil
	}
	if c.sshclient != nil {
		if err := c.sshclient.Close(); err != nil {
			combinedErrors = append(combinedErrors, fmt.Sprintf("ssh close error: %v", err))
		}
		c.sshclient = nil
	}
	if c.agentSocketConn != nil {
		if err := c.agentSocketConn.Close(); err != nil {
			combinedErrors = append(combinedErrors, fmt.Sprintf("agent socket close error: %v", err))
		}
		c.agentSocketConn = nil
	}
	if len(combinedErrors) > 0 {
		return errors.New(strings.Join(combinedErrors, "; "))
	}
	return nil
}

func (c *connection) sftp() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftpclient == nil {
		return nil, errors.New("sftp client is not initialized or connection is closed")
	}
	return c.sftpclient, nil
}

func (c *connection) newSession(ctx context.Context, pty bool) (*ssh.Session, error) {
	c.mu.Lock()
	client := c.sshclient
	c.mu.Unlock()

	if client == nil {
		return nil, errors.New("ssh connection is closed or not initialized")
	}

	opCtx, opCancel := context.WithCancel(ctx)
	defer opCancel()
	go func() {
		select {
		case <-c.connCtx.Done():
			opCancel()
		case <-opCtx.Done():
		}
	}()

	var sess *ssh.Session
	sessionDone := make(chan error, 1)
	go func() {
		s, e := client.NewSession()
		if e != nil {
			sessionDone <- e
			return
		}
		sess = s
		sessionDone <- nil
	}()

	select {
	case <-opCtx.Done():
		return nil, errors.Wrap(opCtx.Err(), "failed to create ssh session (context cancelled)")
	case err := <-sessionDone:
		if err != nil {
			return nil, errors.Wrap(err, "failed to create ssh session")
		}
	}

	if !pty {
		return sess, nil
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if ptyErr := sess.RequestPty("xterm", 100, 50, modes); ptyErr != nil {
		_ = sess.Close()
		return nil, errors.Wrap(ptyErr, "failed to request PTY")
	}
	return sess, nil
}

// prompts returns the password prompts answered during Exec.
func (c *connection) prompts() []string {
	return []string{
		c.config.SudoPrompt,
		fmt.Sprintf("[sudo] password for %s:", c.config.Username),
		"Password:",
	}
}

func (c *connection) Exec(ctx context.Context, cmd string, opts ExecOptions) (stdout []byte, stderr []byte, exitCode int, err error) {
	sess, err := c.newSession(ctx, opts.PTY)
	if err != nil {
		return nil, nil, -1, errors.Wrap(err, "failed to create session for Exec")
	}
	defer sess.Close()

	stdinPipe, err := sess.StdinPipe()
	if err != nil {
		return nil, nil, -1, errors.Wrap(err, "failed to get stdin pipe for Exec")
	}

	var responder *promptResponder
	if c.config.Password != "" {
		responder = newPromptResponder(stdinPipe, c.config.Password, c.prompts())
	}
	outBuf := &lockedBuffer{}
	errBuf := outBuf
	if !opts.CombineStderr {
		errBuf = &lockedBuffer{}
	}
	sess.Stdout = &promptWatcher{dst: outBuf, responder: responder}
	sess.Stderr = &promptWatcher{dst: errBuf, responder: responder}

	if err := sess.Start(strings.TrimSpace(cmd)); err != nil {
		_ = stdinPipe.Close()
		return nil, nil, -1, errors.Wrapf(err, "failed to start command: %s", cmd)
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- sess.Wait()
	}()

	collect := func() ([]byte, []byte) {
		if opts.CombineStderr {
			return outBuf.Bytes(), nil
		}
		return outBuf.Bytes(), errBuf.Bytes()
	}

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGINT)
		select {
		case <-time.After(250 * time.Millisecond):
		case <-waitDone:
		}
		_ = sess.Close()
		_ = stdinPipe.Close()
		stdout, stderr = collect()
		return stdout, stderr, -1, errors.Wrap(ctx.Err(), "command execution cancelled")

	case waitErr := <-waitDone:
		_ = stdinPipe.Close()
		stdout, stderr = collect()
		if waitErr == nil {
			return stdout, stderr, 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(waitErr, &exitErr) {
			return stdout, stderr, exitErr.ExitStatus(), nil
		}
		return stdout, stderr, -1, errors.Wrapf(waitErr, "command did not complete: %s", cmd)
	}
}

func (c *connection) DownloadFile(ctx context.Context, remotePath string, localPath string) error {
	src, err := c.Fetch(ctx, remotePath)
	if err != nil {
		return err
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return errors.Wrapf(err, "failed to read remote file %s", remotePath)
	}
	if err := file.WriteFile(localPath, content, 0); err != nil {
		return errors.Wrapf(err, "failed to write local file %s", localPath)
	}
	return nil
}

func (c *connection) UploadFile(ctx context.Context, localPath string, remotePath string) error {
	localMd5, err := file.LocalMd5Sum(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to calculate MD5 for local file %s", localPath)
	}

	if remoteMd5, ok := c.remoteMd5(ctx, remotePath); ok && remoteMd5 == localMd5 {
		logger.Log.Debugf("Remote file %s has same MD5 as local, skipping upload.", remotePath)
		return nil
	}

	srcFile, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open local file %s", localPath)
	}
	defer srcFile.Close()

	srcFi, err := srcFile.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat local file %s", localPath)
	}
	if srcFi.IsDir() {
		return errors.Errorf("local path %s is a directory", localPath)
	}

	if err := c.Scp(ctx, srcFile, remotePath, srcFi.Mode().Perm()); err != nil {
		return err
	}

	if remoteMd5, ok := c.remoteMd5(ctx, remotePath); !ok {
		logger.Log.Warnf("Failed to get remote MD5 after upload for %s. Validation skipped.", remotePath)
	} else if remoteMd5 != localMd5 {
		return errors.Errorf("MD5 checksum mismatch for %s after upload: local %s != remote %s", remotePath, localMd5, remoteMd5)
	}
	return nil
}

func (c *connection) remoteMd5(ctx context.Context, remotePath string) (string, bool) {
	out, _, code, err := c.Exec(ctx, fmt.Sprintf("md5sum %s | cut -d' ' -f1", escapeShellArg(remotePath)), ExecOptions{})
	if err != nil || code != 0 {
		return "", false
	}
	sum := strings.TrimSpace(string(out))
	return sum, sum != ""
}

func (c *connection) Fetch(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	sftpClient, err := c.sftp()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := sftpClient.Open(remotePath)
	if err != nil {
		return nil, errors.Wrapf(err, "sftp: failed to open remote file %s for fetching", remotePath)
	}
	return f, nil
}

func (c *connection) Scp(ctx context.Context, localReader io.Reader, remotePath string, mode os.FileMode) error {
	sftpClient, err := c.sftp()
	if err != nil {
		return err
	}

	remoteDir := path.Dir(remotePath)
	if err := c.MkDirAll(ctx, remoteDir, common.FileMode0755); err != nil {
		logger.Log.Warnf("Failed to ensure remote directory %s exists (continuing with create): %v", remoteDir, err)
	}

	dstFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return errors.Wrapf(err, "sftp: failed to create remote file %s", remotePath)
	}
	defer dstFile.Close()

	if mode == 0 {
		mode = common.FileMode0644
	}
	if err := dstFile.Chmod(mode.Perm()); err != nil {
		logger.Log.Warnf("sftp: failed to chmod remote file %s to %v: %v. Continuing copy.", remotePath, mode, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, localReader); err != nil {
		return errors.Wrapf(err, "sftp: failed to stream content to remote %s", remotePath)
	}
	return nil
}

func (c *connection) StatRemote(ctx context.Context, remotePath string) (os.FileInfo, error) {
	sftpClient, err := c.sftp()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := sftpClient.Stat(remotePath)
	if err != nil {
		if os.IsNotExist(err) || strings.Contains(strings.ToLower(err.Error()), "no such file") {
			return nil, os.ErrNotExist
		}
		return nil, errors.Wrapf(err, "sftp: failed to stat remote path %s", remotePath)
	}
	return info, nil
}

func (c *connection) MkDirAll(ctx context.Context, remotePath string, mode os.FileMode) error {
	sftpClient, err := c.sftp()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sftpClient.MkdirAll(remotePath); err != nil {
		return errors.Wrapf(err, "sftp: failed to create remote directory %s", remotePath)
	}
	if mode != 0 {
		return c.Chmod(ctx, remotePath, mode)
	}
	return nil
}

func (c *connection) Chmod(ctx context.Context, remotePath string, mode os.FileMode) error {
	sftpClient, err := c.sftp()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sftpClient.Chmod(remotePath, mode.Perm()); err != nil {
		return errors.Wrapf(err, "sftp: failed to chmod %s to %04o", remotePath, mode.Perm())
	}
	return nil
}

func escapeShellArg(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", "'\\''") + "'"
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

// promptResponder writes the password to stdin whenever a watched stream
// ends a line fragment with one of the known prompts.
type promptResponder struct {
	mu       sync.Mutex
	stdin    io.Writer
	password string
	prompts  []string
	last     map[byte]bool
	answered int
}

func newPromptResponder(stdin io.Writer, password string, prompts []string) *promptResponder {
	r := &promptResponder{stdin: stdin, password: password, last: make(map[byte]bool)}
	for _, p := range prompts {
		if p = strings.TrimSpace(p); p != "" {
			r.prompts = append(r.prompts, p)
			r.last[p[len(p)-1]] = true
		}
	}
	return r
}

func (r *promptResponder) matches(line string) bool {
	for _, p := range r.prompts {
		if strings.HasSuffix(line, p) {
			return true
		}
	}
	return false
}

func (r *promptResponder) answer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answered++
	if _, err := io.WriteString(r.stdin, r.password+"\n"); err != nil {
		logger.Log.Debugf("Exec: failed to write password after prompt: %v", err)
	}
}

type promptWatcher struct {
	dst       io.Writer
	responder *promptResponder
	line      []byte
}

func (w *promptWatcher) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if w.responder == nil {
		return n, err
	}
	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.line = w.line[:0]
			continue
		}
		w.line = append(w.line, b)
		if w.responder.last[b] && w.responder.matches(string(w.line)) {
			w.responder.answer()
			w.line = w.line[:0]
		}
	}
	return n, err
}

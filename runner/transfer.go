package runner

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mensylisir/xmguest/common"
	"github.com/mensylisir/xmguest/connector"
	"github.com/mensylisir/xmguest/file"
)

type PutOptions struct {
	// UseSudo stages the upload in the temp dir and moves it into place as root.
	UseSudo bool
	// Mode is applied to the remote file; zero keeps the local file's mode.
	Mode os.FileMode
}

type GetOptions struct {
	// UseSudo reads the remote file as root.
	UseSudo bool
}

func (r *Runner) fileOperator() (connector.FileOperator, error) {
	op, ok := r.conn.(connector.FileOperator)
	if !ok {
		return nil, errors.Errorf("channel for host %s does not support file transfer", r.host)
	}
	return op, nil
}

// mapRemotePath lets the installed strategy relocate remotePath. A mapped
// path always needs root.
func (r *Runner) mapRemotePath(ctx context.Context, remotePath string) (string, bool, error) {
	mapper, ok := r.Strategy().(PathMapper)
	if !ok {
		return remotePath, false, nil
	}
	mapped, err := mapper.MapPath(ctx, r, remotePath)
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to map remote path %s", remotePath)
	}
	if mapped != remotePath {
		r.log.Debugf("remote path %s mapped to %s", remotePath, mapped)
	}
	return mapped, true, nil
}

// admin runs plain root commands on the host, bypassing any installed
// strategy and the cwd/env prefixes.
func (r *Runner) admin() *Runner {
	return r.Host().WithSettings(func(s *Settings) {
		*s = s.WithoutPrefixes()
		s.SudoUser = ""
	})
}

// Put uploads localPath to remotePath.
func (r *Runner) Put(ctx context.Context, localPath, remotePath string, opts PutOptions) error {
	op, err := r.fileOperator()
	if err != nil {
		return err
	}
	remotePath, mapped, err := r.mapRemotePath(ctx, remotePath)
	if err != nil {
		return err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to stat local file %s", localPath)
	}
	if info.IsDir() {
		return errors.Errorf("local path %s is a directory", localPath)
	}
	mode := opts.Mode
	if mode == 0 {
		mode = info.Mode().Perm()
	}

	r.Announce("put", fmt.Sprintf("%s -> %s", localPath, remotePath), fmt.Sprintf("%s -> %s", localPath, remotePath))

	if !opts.UseSudo && !mapped {
		if err := op.UploadFile(ctx, localPath, remotePath); err != nil {
			return errors.Wrapf(err, "failed to upload %s to %s:%s", localPath, r.host, remotePath)
		}
		if opts.Mode != 0 {
			return op.Chmod(ctx, remotePath, opts.Mode)
		}
		return nil
	}

	staging := path.Join(common.GetTmpDir(), uuid.NewString())
	src, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open local file %s", localPath)
	}
	defer src.Close()
	if err := op.Scp(ctx, src, staging, mode); err != nil {
		return errors.Wrapf(err, "failed to stage %s at %s:%s", localPath, r.host, staging)
	}

	admin := r.admin()
	if err := sudoChecked(ctx, admin, fmt.Sprintf(common.MoveCmdTpl, Quote(staging), Quote(remotePath))); err != nil {
		return errors.Wrapf(err, "failed to move staged upload into %s", remotePath)
	}
	if opts.Mode == 0 {
		return nil
	}
	modeStr := "0" + strconv.FormatUint(uint64(opts.Mode.Perm()), 8)
	if err := sudoChecked(ctx, admin, fmt.Sprintf(common.ChmodCmdTpl, modeStr, Quote(remotePath))); err != nil {
		return errors.Wrapf(err, "failed to set mode on %s", remotePath)
	}
	return nil
}

// Get downloads remotePath to localPath.
func (r *Runner) Get(ctx context.Context, remotePath, localPath string, opts GetOptions) error {
	op, err := r.fileOperator()
	if err != nil {
		return err
	}
	remotePath, mapped, err := r.mapRemotePath(ctx, remotePath)
	if err != nil {
		return err
	}

	r.Announce("get", fmt.Sprintf("%s -> %s", remotePath, localPath), fmt.Sprintf("%s -> %s", remotePath, localPath))

	if !opts.UseSudo && !mapped {
		if err := op.DownloadFile(ctx, remotePath, localPath); err != nil {
			return errors.Wrapf(err, "failed to download %s:%s", r.host, remotePath)
		}
		return nil
	}

	// No PTY, so the encoded content is not mixed with prompts or CRs.
	res, err := r.admin().Sudo(ctx, "base64 --wrap=0 "+Quote(remotePath), WithPTY(false), WithCombineStderr(false))
	if err != nil {
		return errors.Wrapf(err, "failed to read %s:%s", r.host, remotePath)
	}
	if res.Failed {
		return errors.Errorf("failed to read %s:%s: return code %d: %s", r.host, remotePath, res.ReturnCode, res.Stderr)
	}
	content, err := base64.StdEncoding.DecodeString(strings.TrimSpace(res.Stdout))
	if err != nil {
		return errors.Wrapf(err, "failed to decode content of %s", remotePath)
	}
	return file.WriteFile(localPath, content, 0)
}

// sudoChecked treats a failed result as an error even in warn-only mode.
func sudoChecked(ctx context.Context, r *Runner, command string) error {
	res, err := r.Sudo(ctx, command, WithPTY(false))
	if err != nil {
		return err
	}
	if res.Failed {
		return errors.Errorf("%s returned %d: %s", command, res.ReturnCode, res.Stdout)
	}
	return nil
}

package file

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mensylisir/xmguest/common"
)

// PathExists reports whether path exists. Errors other than "not exist" are returned.
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// CreateDir creates path and any missing parents.
func CreateDir(path string) error {
	if err := os.MkdirAll(path, common.FileMode0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// CreateFileDir ensures the parent directory of filePath exists.
func CreateFileDir(filePath string) error {
	dir := filepath.Dir(filePath)
	if dir == "." || dir == "" {
		return nil
	}
	return CreateDir(dir)
}

// LocalMd5Sum calculates the MD5 checksum of a local file.
func LocalMd5Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", fmt.Errorf("get file md5 for %s failed: %w", path, err)
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// WriteFile writes content to filePath with mode, creating parent directories.
func WriteFile(filePath string, content []byte, mode os.FileMode) error {
	if err := CreateFileDir(filePath); err != nil {
		return err
	}
	if mode == 0 {
		mode = common.FileMode0644
	}
	if err := os.WriteFile(filePath, content, mode); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filePath, err)
	}
	return nil
}

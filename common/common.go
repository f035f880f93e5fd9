package common

import (
	"io/fs"
	"path/filepath"
)

const (
	AppName    = "xmguest"
	TmpDirBase = "/tmp/"
)

func GetTmpDir() string {
	return filepath.Join(TmpDirBase, AppName) + "/"
}

// Log field keys.
const (
	HostName    = "Host"
	GuestName   = "Guest"
	CommandName = "Command"
	LogFieldApp = "App"
)

const (
	FileMode0755 fs.FileMode = 0755
	FileMode0644 fs.FileMode = 0644
)

// Shell invocations and sudo prefix templates. The sudo templates take the
// prompt string as their only argument.
const (
	DefaultShell      = "/bin/bash -l -c"
	GuestShell        = "/bin/bash -c"
	DefaultSudoPrompt = "sudo password:"
	DefaultSudoPrefix = "sudo -S -p '%s' "
	GuestSudoPrefix   = `sudo -S -p "%s" `
)

const (
	// DefaultContainerTool is the host-side OpenVZ utility used to enter containers.
	DefaultContainerTool = "vzctl"
	// ContainerExecVerb runs a command inside a container and returns its exit status.
	ContainerExecVerb = "exec2"
	// ContainerRootBase is where the host mounts running containers' root filesystems.
	ContainerRootBase = "/vz/root"
	// ResolveCtidCmdTpl prints the numeric CTID of a container given its name or ID.
	ResolveCtidCmdTpl = "vzlist -H -o ctid %s"
)

const (
	// MoveCmdTpl is a template for moving files/directories.
	MoveCmdTpl = "mv -f %s %s"
	// ChmodCmdTpl is a template for changing file permissions.
	ChmodCmdTpl = "chmod %s %s"
)

const (
	DefaultSSHPort = 22
)

// PathBehavior controls how Settings.Path is combined with the remote $PATH.
type PathBehavior string

const (
	PathAppend  PathBehavior = "append"
	PathPrepend PathBehavior = "prepend"
	PathReplace PathBehavior = "replace"
)

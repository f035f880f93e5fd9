package runner

import (
	"fmt"
)

// Result is the outcome of one command.
type Result struct {
	Stdout     string
	Stderr     string
	ReturnCode int
	Failed     bool
	// Command is the command as requested by the caller.
	Command string
	// Executed is the command line actually sent over the channel.
	Executed string
}

func (r *Result) Succeeded() bool {
	return !r.Failed
}

func (r *Result) String() string {
	return r.Stdout
}

// CommandError reports a nonzero return code. Transport failures are
// reported the same way with ReturnCode -1 and Cause set.
type CommandError struct {
	Verb       string
	Requested  string
	Executed   string
	ReturnCode int
	Stdout     string
	Stderr     string
	Cause      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s() received nonzero return code %d while executing!\n\nRequested: %s\nExecuted: %s",
		e.Verb, e.ReturnCode, e.Requested, e.Executed)
	if e.Cause != nil {
		msg += fmt.Sprintf("\n\nCause: %v", e.Cause)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}

// warnMessage is the short form logged in warn-only mode.
func warnMessage(verb string, status int, given string) string {
	return fmt.Sprintf("%s() received nonzero return code %d while executing '%s'!", verb, status, given)
}

package exechelper

import (
	"bytes"
	"context"
)

// Executor is the interface for executing commands.
type Executor interface {
	RunCommand(ctx context.Context, params ExecParams) ExecResult
}

// ExecParams parameters to execute a command
type ExecParams struct {
	CmdName string
	CmdArgs []string
	// Timeout in seconds, 0 means the context alone bounds the run
	Timeout int
}

// ExecResult result of executing a command
type ExecResult struct {
	OutBuf   *bytes.Buffer
	ErrBuf   *bytes.Buffer
	ExitCode int
	Error    error
}

// Package basicexecutor runs commands on the host with os/exec.
package basicexecutor

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/diskwarden/diskwarden/pkg/exechelper"
)

type basicExecutor struct{}

// New returns an Executor backed by os/exec.
func New() exechelper.Executor {
	return &basicExecutor{}
}

func (e *basicExecutor) RunCommand(ctx context.Context, params exechelper.ExecParams) exechelper.ExecResult {
	result := exechelper.ExecResult{
		OutBuf: &bytes.Buffer{},
		ErrBuf: &bytes.Buffer{},
	}

	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(params.Timeout)*time.Second)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, params.CmdName, params.CmdArgs...)
	execCmd.Stdout = result.OutBuf
	execCmd.Stderr = result.ErrBuf

	log.WithField("command", execCmd.String()).Debug("Executing command")
	err := execCmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Error = ctxErr
		result.ExitCode = -1
		return result
	}
	if err != nil {
		result.Error = err
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}
	return result
}

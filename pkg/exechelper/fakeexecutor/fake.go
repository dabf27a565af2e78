// Package fakeexecutor records commands instead of running them, for
// tests that must observe exactly what would have hit the host.
package fakeexecutor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/diskwarden/diskwarden/pkg/exechelper"
)

// Response is what the fake answers for a matched command line.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Fake implements exechelper.Executor. Responses are matched by the
// longest registered prefix of the full command line, so callers can
// ignore unpredictable trailing arguments like temp paths.
type Fake struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]Response
}

func New() *Fake {
	return &Fake{responses: map[string]Response{}}
}

// Respond registers a response for command lines starting with prefix.
func (f *Fake) Respond(prefix string, resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = resp
}

func (f *Fake) RunCommand(_ context.Context, params exechelper.ExecParams) exechelper.ExecResult {
	line := params.CmdName
	if len(params.CmdArgs) > 0 {
		line += " " + strings.Join(params.CmdArgs, " ")
	}

	f.mu.Lock()
	f.calls = append(f.calls, line)
	var (
		resp    Response
		longest = -1
	)
	for prefix, r := range f.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) > longest {
			resp, longest = r, len(prefix)
		}
	}
	f.mu.Unlock()

	result := exechelper.ExecResult{
		OutBuf:   bytes.NewBufferString(resp.Stdout),
		ErrBuf:   bytes.NewBufferString(resp.Stderr),
		ExitCode: resp.ExitCode,
		Error:    resp.Err,
	}
	if result.Error == nil && resp.ExitCode != 0 {
		result.Error = fmt.Errorf("exit status %d", resp.ExitCode)
	}
	return result
}

// Calls returns every command line the fake has seen, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsMatching returns the recorded command lines containing substr.
func (f *Fake) CallsMatching(substr string) []string {
	var matched []string
	for _, line := range f.Calls() {
		if strings.Contains(line, substr) {
			matched = append(matched, line)
		}
	}
	return matched
}

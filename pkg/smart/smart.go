// Package smart asks smartctl for the overall health verdict of a
// device.
package smart

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/diskwarden/diskwarden/pkg/exechelper"
)

const (
	_SMARTCtl = "smartctl"

	// json paths in smartctl output
	_SMARTExitStatus   = "smartctl.exit_status"
	_SMARTMessages     = "smartctl.messages"
	_SMARTStatusPassed = "smart_status.passed"

	probeTimeoutSeconds = 30
)

// Prober reports device health. Implementations must distinguish "the
// device is failing" (false, nil) from "no verdict could be obtained"
// (error).
type Prober interface {
	HealthStatus(ctx context.Context, devPath string) (bool, error)
}

type controller struct {
	exec exechelper.Executor
}

// NewController returns a Prober shelling out to smartctl through the
// given executor.
func NewController(exec exechelper.Executor) Prober {
	return &controller{exec: exec}
}

// HealthStatus runs `smartctl -H <dev> --json` and decodes the overall
// verdict. smartctl uses its exit code as a bit field and a nonzero
// code can still carry a valid verdict, so the json is authoritative.
func (c *controller) HealthStatus(ctx context.Context, devPath string) (bool, error) {
	result := c.exec.RunCommand(ctx, exechelper.ExecParams{
		CmdName: _SMARTCtl,
		CmdArgs: []string{"-H", devPath, "--json"},
		Timeout: probeTimeoutSeconds,
	})

	out := result.OutBuf.String()
	if result.Error != nil && !gjson.Valid(out) {
		return false, fmt.Errorf("smartctl on %s: %v", devPath, result.Error)
	}
	if !gjson.Valid(out) {
		return false, fmt.Errorf("smartctl on %s: output is not json", devPath)
	}

	parsed := gjson.Parse(out)
	if err := executionError(parsed.Get(_SMARTExitStatus).Int()); err != nil {
		return false, fmt.Errorf("smartctl on %s: %v", devPath, err)
	}
	if err := messageError(parsed); err != nil {
		return false, fmt.Errorf("smartctl on %s: %v", devPath, err)
	}

	status := parsed.Get(_SMARTStatusPassed)
	if !status.Exists() {
		return false, fmt.Errorf("smartctl on %s: no smart_status in output", devPath)
	}
	return status.Bool(), nil
}

// executionError decodes the low bits of the smartctl exit status.
// Bits 3 and up describe the device's health, which the smart_status
// verdict already covers; only the low three mean smartctl itself
// could not do its job.
func executionError(code int64) error {
	switch {
	case code&1 != 0:
		return fmt.Errorf("command line did not parse")
	case code&(1<<1) != 0:
		return fmt.Errorf("device open failed")
	case code&(1<<2) != 0:
		return fmt.Errorf("a mandatory SMART command failed")
	}
	return nil
}

func messageError(json gjson.Result) error {
	messages := json.Get(_SMARTMessages)
	if !messages.Exists() {
		return nil
	}
	for _, message := range messages.Array() {
		if message.Get("severity").String() == "error" {
			return fmt.Errorf("%s", message.Get("string").String())
		}
	}
	return nil
}

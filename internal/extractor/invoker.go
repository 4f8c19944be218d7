// Package extractor runs the external line-processing scripts that pull
// user records out of a stored file.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Script identifies one extraction kind.
type Script string

const (
	// ScriptSize emits one scalar line (max by default, min with MinFlag).
	ScriptSize Script = "size"
	// ScriptOrder emits every record sorted by name (asc by default, desc with DescFlag).
	ScriptOrder Script = "order"
	// ScriptRange emits the records whose embedded count lies within two bounds.
	ScriptRange Script = "range"
)

// Default script file names and flags understood by the bundled scripts.
const (
	DefaultInterpreter = "bash"
	DefaultScriptDir   = "scripts"
	DefaultMinFlag     = "-min"
	DefaultDescFlag    = "-desc"
	DefaultTimeout     = 30 * time.Second
)

// waitDelay bounds how long Run waits for output pipes after the script is
// killed, in case a grandchild process still holds them open.
const waitDelay = 2 * time.Second

// DefaultScripts maps each extraction kind to its script file name.
func DefaultScripts() map[Script]string {
	return map[Script]string{
		ScriptSize:  "max-min-size.sh",
		ScriptOrder: "order-by-username.sh",
		ScriptRange: "between-msgs.sh",
	}
}

// Runner runs an extraction script against a stored file and returns its
// whitespace-trimmed standard output.
type Runner interface {
	Run(ctx context.Context, script Script, filePath string, args ...string) (string, error)
}

// Logger receives diagnostics about script runs. Can be nil.
type Logger interface {
	LogDebug(message string)
	LogWarn(message string)
}

// Invoker runs scripts as subprocesses. Configure it once; Run is safe
// for concurrent use.
type Invoker struct {
	// Interpreter is the program that executes scripts. Defaults to "bash".
	Interpreter string

	// ScriptDir is the directory holding the script files.
	ScriptDir string

	// Scripts maps extraction kinds to file names inside ScriptDir.
	Scripts map[Script]string

	// Timeout bounds each run. Zero disables the bound and a hung script
	// then blocks its caller until the context is cancelled.
	Timeout time.Duration

	// Logger receives per-run diagnostics, including captured stderr.
	Logger Logger
}

// NewInvoker creates an Invoker with the default interpreter, scripts and timeout.
func NewInvoker(scriptDir string) *Invoker {
	return &Invoker{
		Interpreter: DefaultInterpreter,
		ScriptDir:   scriptDir,
		Scripts:     DefaultScripts(),
		Timeout:     DefaultTimeout,
	}
}

// ScriptPath resolves the file of an extraction kind.
func (inv *Invoker) ScriptPath(script Script) (string, error) {
	name, ok := inv.Scripts[script]
	if !ok || name == "" {
		return "", fmt.Errorf("no script configured for %q", script)
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	return filepath.Join(inv.ScriptDir, name), nil
}

// BuildCommandArgs returns the interpreter arguments for a run:
// script path, file path, then the extra positional arguments.
func (inv *Invoker) BuildCommandArgs(script Script, filePath string, args ...string) ([]string, error) {
	scriptPath, err := inv.ScriptPath(script)
	if err != nil {
		return nil, err
	}
	cmdArgs := make([]string, 0, len(args)+2)
	cmdArgs = append(cmdArgs, scriptPath, filePath)
	cmdArgs = append(cmdArgs, args...)
	return cmdArgs, nil
}

// Run executes the script and waits for it to exit. Stdout and stderr are
// captured separately; only trimmed stdout is returned. A spawn failure,
// non-zero exit or timeout yields a *ProcessError.
func (inv *Invoker) Run(ctx context.Context, script Script, filePath string, args ...string) (string, error) {
	ctxToUse := ctx
	var cancel context.CancelFunc
	if inv.Timeout > 0 {
		ctxToUse, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmdArgs, err := inv.BuildCommandArgs(script, filePath, args...)
	if err != nil {
		return "", &ProcessError{Script: script, ExitCode: -1, Err: err}
	}

	interpreter := inv.Interpreter
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}

	cmd := exec.CommandContext(ctxToUse, interpreter, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runErr != nil {
		perr := &ProcessError{
			Script:   script,
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      runErr,
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		if errors.Is(ctxToUse.Err(), context.DeadlineExceeded) {
			if inv.Timeout > 0 && ctx.Err() == nil {
				perr.Err = fmt.Errorf("timed out after %s: %w", inv.Timeout, runErr)
			} else {
				perr.Err = fmt.Errorf("deadline exceeded: %w", runErr)
			}
		}
		inv.logWarn(fmt.Sprintf("extractor %s failed on %s after %s: %v", script, filePath, duration.Round(time.Millisecond), perr))
		return "", perr
	}

	if stderr.Len() > 0 {
		inv.logDebug(fmt.Sprintf("extractor %s stderr: %s", script, strings.TrimSpace(stderr.String())))
	}
	inv.logDebug(fmt.Sprintf("extractor %s on %s finished in %s (%d bytes)", script, filePath, duration.Round(time.Millisecond), stdout.Len()))

	return strings.TrimSpace(stdout.String()), nil
}

func (inv *Invoker) logDebug(message string) {
	if inv.Logger != nil {
		inv.Logger.LogDebug(message)
	}
}

func (inv *Invoker) logWarn(message string) {
	if inv.Logger != nil {
		inv.Logger.LogWarn(message)
	}
}

package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Local is a runner for local execution, just exec on localhost with the
// inherited environment plus per-command additions.
type Local struct {
	logs Logs
}

// NewLocal makes a local executor. In verbose mode tool output goes to stderr
// colorized per tool, otherwise it is sent to the debug log.
func NewLocal(verbose bool) *Local {
	return &Local{logs: MakeLogs(verbose)}
}

// Run executes the command and returns captured stdout and stderr lines.
// A non-zero exit or a start failure returns an error with the last stderr
// line attached; captured output is returned in either case so callers can
// include diagnostics.
func (l *Local) Run(ctx context.Context, c Command) (res Result, err error) {
	if c.Name == "" {
		return Result{}, fmt.Errorf("can't run empty command")
	}

	logs := l.logs.WithTool(c.Name)
	logs.Info.Printf("%s", c)

	command := exec.CommandContext(ctx, c.Name, c.Args...)
	command.Dir = c.Dir
	if len(c.Env) > 0 {
		command.Env = append(os.Environ(), c.Env...)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	command.Stdout = io.MultiWriter(logs.Out, &stdoutBuf)
	command.Stderr = io.MultiWriter(logs.Err, &stderrBuf)

	runErr := command.Run()
	res = Result{Stdout: readLines(&stdoutBuf), Stderr: readLines(&stderrBuf)}
	if runErr != nil {
		if len(res.Stderr) > 0 {
			return res, fmt.Errorf("can't run %s: %w, %s", c.Name, runErr, res.Stderr[len(res.Stderr)-1])
		}
		return res, fmt.Errorf("can't run %s: %w", c.Name, runErr)
	}
	return res, nil
}

func readLines(buf *bytes.Buffer) (lines []string) {
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// Package assemble turns rendered source fragments into the final bindings
// file. Fragments are concatenated, piped through an external formatter and
// written out in one shot, a failed run never replaces existing output.
package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-pkgz/fileutils"
	"github.com/go-pkgz/syncs"

	"github.com/sqlite3gen/sqlite3gen/pkg/config"
)

// formatter exit codes with a known meaning, the gofmt/rustfmt convention
const (
	exitParseError    = 2
	exitPartialFormat = 3
)

// Run concatenates the fragments, formats the result with cfg.Formatter and
// writes it to cfg.Output.
func Run(ctx context.Context, fragments []string, cfg *config.Config) error {
	formatter := cfg.Formatter
	if formatter == "" {
		formatter = "gofmt"
	}
	bin, err := exec.LookPath(formatter)
	if err != nil {
		return fmt.Errorf("can't find formatter %q in PATH: %w", formatter, err)
	}

	formatted, err := format(ctx, bin, join(fragments))
	if err != nil {
		return err
	}
	if err := write(cfg.Output, formatted); err != nil {
		return err
	}
	log.Printf("[INFO] assembled %s, %d fragments, %d bytes", cfg.Output, len(fragments), len(formatted))
	return nil
}

// join glues fragments with blank lines, the formatter settles final spacing.
func join(fragments []string) []byte {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		f = strings.TrimRight(f, "\n")
		if f == "" {
			continue
		}
		parts = append(parts, f)
	}
	return []byte(strings.Join(parts, "\n\n") + "\n")
}

// format runs the formatter binary over src through stdin/stdout pipes. The
// writer has to run apart from the reader, a formatter holding output back
// until it consumed all input would deadlock a single sequential loop.
func format(ctx context.Context, bin string, src []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("can't open formatter stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("can't open formatter stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("can't start formatter %s: %w", bin, err)
	}

	wg := syncs.NewErrSizedGroup(1, syncs.Context(ctx), syncs.Preemptive)
	wg.Go(func() error {
		defer stdin.Close() // nolint
		if _, e := stdin.Write(src); e != nil {
			return fmt.Errorf("can't feed formatter: %w", e)
		}
		return nil
	})

	formatted, readErr := io.ReadAll(stdout)
	feedErr := wg.Wait()
	procErr := cmd.Wait()

	if procErr != nil {
		details := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(procErr, &exitErr) {
			switch exitErr.ExitCode() {
			case exitParseError:
				return nil, fmt.Errorf("formatter reported a parse error in the generated source: %s", details)
			case exitPartialFormat:
				return nil, fmt.Errorf("formatter could not format some lines: %s", details)
			}
		}
		return nil, fmt.Errorf("formatter failed: %w, %s", procErr, details)
	}
	if readErr != nil {
		return nil, fmt.Errorf("can't read formatter output: %w", readErr)
	}
	if feedErr != nil {
		return nil, feedErr
	}
	return formatted, nil
}

// write lands data at outPath through a temp name in the same directory, a
// crash mid-write can't leave a truncated bindings file for the build to pick
// up.
func write(outPath string, data []byte) error {
	dir := filepath.Dir(outPath)
	tmp, err := fileutils.TempFileName(dir, "bindings-*.go")
	if err != nil {
		return fmt.Errorf("can't allocate temp name in %s: %w", dir, err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil { // nolint
		return fmt.Errorf("can't write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("can't move output to %s: %w", outPath, err)
	}
	return nil
}

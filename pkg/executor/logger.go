package executor

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

// LogWriter is an interface for writing tool output to the build log.
// Some implementations colorize the output per tool.
type LogWriter interface {
	io.Writer
	Printf(format string, v ...any)
	WithTool(name string) LogWriter
}

// Logs is a struct that contains three LogWriters, one for the command echo,
// one for stdout and one for stderr of the executed tool.
type Logs struct {
	Info LogWriter
	Out  LogWriter
	Err  LogWriter

	verbose bool
}

// WithTool creates a new Logs with the given tool name for each LogWriter.
func (l Logs) WithTool(name string) Logs {
	return Logs{
		Info:    l.Info.WithTool(name),
		Out:     l.Out.WithTool(name),
		Err:     l.Err.WithTool(name),
		verbose: l.verbose,
	}
}

// MakeLogs creates a new set of log writers for the info line and the tool's
// stdout and stderr. If verbose is true, tool output is written to stderr
// colorized per tool name, otherwise it goes to the debug log. Stdout is never
// used, it is reserved for the emitted build directives.
func MakeLogs(verbose bool) Logs {
	var infoLog, outLog, errLog LogWriter
	infoLog = &stdLogWriter{level: "DEBUG", prefix: "$"}
	outLog = &stdLogWriter{level: "DEBUG", prefix: ">"}
	errLog = &stdLogWriter{level: "WARN", prefix: "!"}
	if verbose {
		outLog = &colorizedWriter{wr: os.Stderr, prefix: ">"}
		errLog = &colorizedWriter{wr: os.Stderr, prefix: "!"}
	}
	return Logs{Info: infoLog, Out: outLog, Err: errLog, verbose: verbose}
}

// colorizedWriter is a writer that colorizes the output based on the tool name.
type colorizedWriter struct {
	wr     io.Writer
	prefix string
	tool   string
}

// WithTool creates a new colorizedWriter with the given tool name.
func (s *colorizedWriter) WithTool(name string) LogWriter {
	return &colorizedWriter{wr: s.wr, prefix: s.prefix, tool: name}
}

// Printf writes the given text to the underlying writer with the colorized
// tool prefix.
func (s *colorizedWriter) Printf(format string, v ...any) {
	fmt.Fprintf(s, format, v...)
}

// Write writes the given byte slice with the colorized tool prefix for each
// line. If the input does not end with a newline, one is added.
func (s *colorizedWriter) Write(p []byte) (n int, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(p))
	for scanner.Scan() {
		line := scanner.Text()
		formatted := fmt.Sprintf("[%s] %s %s", s.tool, s.prefix, line)
		if s.prefix == "" {
			formatted = fmt.Sprintf("[%s] %s", s.tool, line)
		}
		colorized := s.toolColorizer(s.tool)("%s\n", formatted)
		if _, err = io.WriteString(s.wr, colorized); err != nil {
			return 0, err
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// toolColorizer returns a function that formats a string with a color picked
// by the tool name.
func (s *colorizedWriter) toolColorizer(tool string) func(format string, a ...interface{}) string {
	colors := []color.Attribute{
		color.FgHiGreen, color.FgHiYellow, color.FgHiBlue,
		color.FgHiMagenta, color.FgHiCyan, color.FgGreen,
		color.FgYellow, color.FgBlue, color.FgMagenta, color.FgCyan,
	}
	i := crc32.ChecksumIEEE([]byte(tool)) % uint32(len(colors))
	return color.New(colors[i]).SprintfFunc()
}

// stdLogWriter is a writer that writes to the standard log with a tool prefix
// and a log level.
type stdLogWriter struct {
	prefix string
	level  string
	tool   string
}

func (w *stdLogWriter) Write(p []byte) (n int, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(p))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		log.Printf("[%s] %s %s %s", w.level, w.tool, w.prefix, line)
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Printf writes the given text to the log with the tool prefix and log level.
func (w *stdLogWriter) Printf(format string, v ...any) {
	log.Printf("[%s] %s %s %s", w.level, w.tool, w.prefix, fmt.Sprintf(format, v...))
}

// WithTool creates a new stdLogWriter with the given tool name.
func (w *stdLogWriter) WithTool(name string) LogWriter {
	return &stdLogWriter{prefix: w.prefix, level: w.level, tool: name}
}

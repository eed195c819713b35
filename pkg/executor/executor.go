// Package executor provides an interface for running external build tools as
// well as a local implementation. The executor is used by the library probers
// and the bundled compiler; output is captured for the caller and streamed to
// the build log at the same time.
package executor

import (
	"context"
	"strings"
)

// Interface is an interface for the executor.
// Implemented by Local; tests supply their own fakes.
type Interface interface {
	Run(ctx context.Context, c Command) (res Result, err error)
}

// Command describes a single external tool invocation. Name is resolved via
// PATH. Env entries are appended to the inherited environment. Dir, if set,
// is the working directory for the command.
type Command struct {
	Name string
	Args []string
	Env  []string
	Dir  string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result contains the captured output of a completed command, split into
// lines with trailing newlines removed.
type Result struct {
	Stdout []string
	Stderr []string
}

// Joined returns all stdout lines as a single space-separated string, the
// form flag-emitting tools like pkg-config are parsed from.
func (r Result) Joined() string {
	return strings.Join(r.Stdout, " ")
}

// Package runner turns a code snapshot into bounded stdout/stderr/exit-code
// output. The language table maps allow-listed names onto interpreter
// commands invoked with an inline-code flag; anything off the table never
// reaches a subprocess.
package runner

import (
	"context"
	"time"

	"pairbench/server/pkg/config"
)

// Command is a resolved interpreter invocation. The code string is appended
// as the final argument.
type Command struct {
	Name string
	Cmd  string
	Args []string
}

// Result is the captured outcome of one run. Output is whatever accumulated
// before the process exited or was killed, so a timed-out run still carries
// partial stdout/stderr.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Elapsed  time.Duration
}

// Runner executes one resolved command under a wall-clock deadline. On
// expiry the process is killed non-gracefully. A returned error means the
// run never produced an exit status (spawn failure, runtime breakage); a
// non-zero exit is not an error at this layer.
type Runner interface {
	Run(ctx context.Context, cmd Command, code string, timeout time.Duration) (Result, error)
}

// Languages is the resolved allow-list.
type Languages map[string]Command

// NewLanguages builds the table from configuration.
func NewLanguages(cfgs []config.LanguageConfig) Languages {
	table := make(Languages, len(cfgs))
	for _, c := range cfgs {
		table[c.Name] = Command{Name: c.Name, Cmd: c.Cmd, Args: c.Args}
	}
	return table
}

// Resolve looks the language up; ok is false for anything off the list.
func (l Languages) Resolve(language string) (Command, bool) {
	cmd, ok := l[language]
	return cmd, ok
}

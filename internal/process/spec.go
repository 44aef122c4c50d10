package process

import (
	"errors"
	"os/exec"
	"strings"

	"github.com/loykin/procsched/internal/logger"
)

// DefaultCommand is the worker program launched when none is configured.
const DefaultCommand = "./task"

// Spec describes how worker processes are launched.
type Spec struct {
	Name    string        `json:"name" mapstructure:"name"`
	Command string        `json:"command" mapstructure:"command"`   // worker command line, no shell unless needed
	WorkDir string        `json:"work_dir" mapstructure:"work_dir"` // optional working dir
	Env     []string      `json:"env" mapstructure:"env"`           // extra KEY=VALUE pairs
	Log     logger.Config `json:"log" mapstructure:"log"`           // optional per-worker stdout/stderr files
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("worker requires name")
	}
	if strings.TrimSpace(s.Command) == "" {
		return errors.New("worker requires command")
	}
	return nil
}

// BuildCommand turns Command into an *exec.Cmd. Plain argv strings are executed
// directly; strings with shell metacharacters, or an explicit "sh -c" prefix,
// run under /bin/sh.
func (s Spec) BuildCommand() *exec.Cmd {
	line := strings.TrimSpace(s.Command)
	if line == "" {
		line = DefaultCommand
	}
	if _, script, ok := parseExplicitShell(line); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", script)
	}
	if strings.ContainsAny(line, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", line)
	}
	argv := strings.Fields(line)
	// #nosec G204
	return exec.Command(argv[0], argv[1:]...)
}

// parseExplicitShell matches a leading "sh -c", "/bin/sh -c" or "/usr/bin/sh -c"
// and returns the shell and its script with one pair of outer quotes removed.
func parseExplicitShell(line string) (string, string, bool) {
	trim := strings.TrimLeft(line, " \t")
	for _, prefix := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, prefix) {
			continue
		}
		script := trim[len(prefix):]
		if n := len(script); n >= 2 {
			if q := script[0]; (q == '\'' || q == '"') && script[n-1] == q {
				script = script[1 : n-1]
			}
		}
		return strings.Fields(prefix)[0], script, true
	}
	return "", "", false
}

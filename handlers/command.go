package handlers

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"

	"github.com/brettbedarf/mimic/cgi"
	"github.com/brettbedarf/mimic/internal/util"
)

type command struct {
	path   string
	args   []string
	dir    string
	logger util.Logger
}

// CommandOption configures [Command]
type CommandOption func(*command)

// WithDir sets the working directory of the program
func WithDir(dir string) CommandOption {
	return func(c *command) { c.dir = dir }
}

// WithArgs sets the arguments passed to the program
func WithArgs(args ...string) CommandOption {
	return func(c *command) { c.args = args }
}

// Command runs an external CGI program per request. The program gets the
// request's meta-variables (plus PATH) as its environment, the request body on
// stdin, and its stdout becomes the response. Its stderr is logged.
// A non-zero exit is a fault.
func Command(path string, opts ...CommandOption) cgi.Handler {
	c := &command{path: path, logger: util.GetLogger("handlers.command")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *command) ServeCGI(ctx context.Context, req *cgi.Request) error {
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Dir = c.dir
	cmd.Env = commandEnv(req.Env)
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = util.NewLogWriter("handlers.command", util.WarnLevel)

	c.logger.Debug().Str("request_id", req.ID).Str("program", c.path).Msg("Running CGI program")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cgi program %s: %w", c.path, err)
	}
	return nil
}

// commandEnv flattens meta-variables into a sorted KEY=value list
func commandEnv(env map[string]string) []string {
	out := make([]string, 0, len(env)+1)
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	if _, ok := env["PATH"]; !ok {
		out = append(out, "PATH="+os.Getenv("PATH"))
	}
	slices.Sort(out)
	return out
}

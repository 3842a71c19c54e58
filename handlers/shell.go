package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/brettbedarf/mimic/cgi"
	"github.com/brettbedarf/mimic/internal/util"
)

// FileBuiltin is the command a shell script runs to print a file from the
// request's tree: "mimic-file PATH".
const FileBuiltin = "mimic-file"

type shell struct {
	prog   *syntax.File
	dir    string
	logger util.Logger
}

// ShellOption configures [Shell]
type ShellOption func(*shell)

// WithShellDir sets the working directory of the interpreter
func WithShellDir(dir string) ShellOption {
	return func(s *shell) { s.dir = dir }
}

// Shell runs a POSIX shell script in-process per request. Like [Command],
// the script sees only the meta-variables (plus PATH), reads the body from
// stdin and writes CGI output to stdout. [FileBuiltin] reads from the
// request's tree. A non-zero exit status is a fault.
//
// The script is parsed once; a syntax error is returned here.
func Shell(script string, opts ...ShellOption) (cgi.Handler, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "handler")
	if err != nil {
		return nil, fmt.Errorf("parse shell handler: %w", err)
	}
	s := &shell{prog: prog, logger: util.GetLogger("handlers.shell")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *shell) ServeCGI(ctx context.Context, req *cgi.Request) error {
	runOpts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(commandEnv(req.Env)...)),
		interp.StdIO(req.Stdin, req.Stdout, util.NewLogWriter("handlers.shell", util.WarnLevel)),
		interp.ExecHandlers(s.treeBuiltin(req)),
	}
	if s.dir != "" {
		runOpts = append(runOpts, interp.Dir(s.dir))
	}
	runner, err := interp.New(runOpts...)
	if err != nil {
		return fmt.Errorf("shell handler: %w", err)
	}

	s.logger.Debug().Str("request_id", req.ID).Msg("Running shell handler")
	if err := runner.Run(ctx, s.prog); err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return fmt.Errorf("shell handler: exit status %d", status)
		}
		return fmt.Errorf("shell handler: %w", err)
	}
	return nil
}

// treeBuiltin intercepts [FileBuiltin] and passes everything else on
func (s *shell) treeBuiltin(req *cgi.Request) func(interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
		return func(ctx context.Context, args []string) error {
			if len(args) == 0 || args[0] != FileBuiltin {
				return next(ctx, args)
			}
			hc := interp.HandlerCtx(ctx)
			if len(args) != 2 {
				fmt.Fprintf(hc.Stderr, "usage: %s PATH\n", FileBuiltin)
				return interp.ExitStatus(2)
			}
			if req.Tree == nil {
				fmt.Fprintf(hc.Stderr, "%s: no tree bound to request\n", FileBuiltin)
				return interp.ExitStatus(1)
			}
			contents, ok := req.Tree.GetFileContents(args[1])
			if !ok {
				fmt.Fprintf(hc.Stderr, "%s: %s: no such file\n", FileBuiltin, args[1])
				return interp.ExitStatus(1)
			}
			_, err := hc.Stdout.Write(contents)
			return err
		}
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/cachetree"
	"github.com/brettbedarf/mimic/cgi"
	"github.com/brettbedarf/mimic/config"
	"github.com/brettbedarf/mimic/dirtree"
	"github.com/brettbedarf/mimic/handlers"
	"github.com/brettbedarf/mimic/internal/metrics"
	"github.com/brettbedarf/mimic/internal/util"
	"github.com/brettbedarf/mimic/keyspace"
	"github.com/brettbedarf/mimic/mount"
	"github.com/brettbedarf/mimic/seed"
	"github.com/brettbedarf/mimic/server"
	"github.com/brettbedarf/mimic/trees"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command line arguments
	var (
		configPath string
		verbose    int
		seedPath   string
		mnt        string
		cgiPath    string
		shPath     string
		umount     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML, JSON or TOML config file")
	flag.StringVar(&configPath, "c", "", "--config (shorthand)")
	flag.StringVar(&seedPath, "seed", "", "Path to a YAML or JSON manifest loaded into the default namespace")
	flag.StringVar(&seedPath, "s", "", "--seed (shorthand)")
	flag.StringVar(&mnt, "mount", "", "Mount the default namespace tree read-only at this path")
	flag.StringVar(&mnt, "m", "", "--mount (shorthand)")
	flag.StringVar(&cgiPath, "cgi", "", "Run this program as the hosted handler instead of serving static files")
	flag.StringVar(&shPath, "sh", "", "Run this shell script in-process as the hosted handler")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the mount point first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", config.InfoVerbose, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", config.InfoVerbose, "--verbose (shorthand)")
	flag.Parse()

	override := &config.ConfigOverride{}
	if configPath != "" {
		fileOverride, err := config.LoadConfigOverrideFile(configPath)
		if err != nil {
			util.InitializeLogger(config.DefaultLogLvl)
			logger := util.GetLogger("main")
			logger.Fatal().Err(err).Str("config", configPath).Msg("Failed to load config file")
		}
		override = fileOverride
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "verbose" || f.Name == "v" {
			override.LogLvl = &verbose
		}
	})
	cfg := config.NewConfig(override)
	if override.StackTraces == nil {
		cfg.StackTraces = config.IsDevMode(os.LookupEnv)
	}

	// Initialize logger
	util.InitializeLogger(cfg.LogLvl)
	logger := util.GetLogger("main")
	logger.Info().
		Str("listen", cfg.ListenAddr).
		Str("tree", cfg.TreeType).
		Str("namespace", cfg.Namespace).
		Str("mnt", mnt).
		Msg("Mimic host initializing")

	// Register all built-in tree types
	trees.RegisterBuiltins()
	provider := config.NewProvider(cfg)

	ns := provider.Namespace()
	tree, err := provider.NewTree(ns, "")
	if err != nil {
		logger.Fatal().Err(err).Str("namespace", ns).Msg("Failed to open default tree")
	}
	if seedPath != "" {
		if _, err := seed.Load(tree, seedPath); err != nil {
			logger.Fatal().Err(err).Str("seed", seedPath).Msg("Failed to load seed manifest")
		}
	}

	var handler cgi.Handler
	switch {
	case cgiPath != "":
		handler = handlers.Command(cgiPath)
		logger.Info().Str("program", cgiPath).Msg("Serving CGI program")
	case shPath != "":
		script, err := os.ReadFile(shPath)
		if err != nil {
			logger.Fatal().Err(err).Str("script", shPath).Msg("Failed to read shell handler")
		}
		if handler, err = handlers.Shell(string(script)); err != nil {
			logger.Fatal().Err(err).Str("script", shPath).Msg("Invalid shell handler")
		}
		logger.Info().Str("script", shPath).Msg("Serving shell script")
	default:
		handler = handlers.Static()
	}

	store := keyspace.NewMemStore()
	srv := server.New(provider, handler, store, server.Options{
		ProjectIDQueryParam: cfg.ProjectIDQueryParam,
		ProjectIDPathPrefix: cfg.ProjectIDPathPrefix,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		CORSAllowedHeaders:  cfg.CORSAllowedHeaders,
		CacheFiles:          cfg.CacheFiles,
		StackTraces:         cfg.StackTraces,
	})

	mux := http.NewServeMux()
	if cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, metrics.Handler())
	}
	mux.Handle("/", srv)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          util.NewLogLogger("HTTPServer", util.WarnLevel),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	eg, ctx := errgroup.WithContext(ctx)

	// Drop cached contents when files change on disk
	if dt, ok := tree.(*dirtree.Tree); ok && cfg.CacheFiles {
		if w := watchTree(dt); w != nil {
			eg.Go(func() error {
				return w.Run(ctx, func(path string) {
					cachetree.Invalidate(store, ns, path)
				})
			})
		}
	}

	var fsMount *mount.Mount
	if mnt != "" {
		fsMount = serveMount(tree, cfg.MountOptions, mnt, umount)
	}

	eg.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		// Wait for termination signal or a failed sibling
		<-ctx.Done()
		logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		logger.Error().Err(err).Msg("Mimic host stopped with error")
	}

	if fsMount != nil {
		if err := fsMount.Unmount(); err != nil {
			logger.Error().Err(err).Msg("Failed to unmount filesystem")
		} else {
			logger.Info().Msg("Filesystem unmounted successfully")
		}
	}
}

// serveMount mounts tree at mnt. Failure to mount is logged, not fatal:
// the HTTP server does not depend on it.
func serveMount(tree mimic.Tree, opts config.MountOptions, mnt string, umount bool) *mount.Mount {
	logger := util.GetLogger("main")
	// Try unmount if requested
	if umount { // send cli command
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}
	m := mount.New(tree, opts)
	if err := m.Serve(mnt); err != nil {
		logger.Error().Err(err).Str("mountpoint", mnt).Msg("Failed to mount filesystem")
		return nil
	}
	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")
	return m
}

// watchTree starts watching tree's directory. Returns nil if the watch could
// not be set up; cached files may then go stale.
func watchTree(tree *dirtree.Tree) *dirtree.Watcher {
	logger := util.GetLogger("main")
	w, err := tree.Watch()
	if err != nil {
		logger.Warn().Err(err).Str("dir", tree.Base()).Msg("Failed to watch tree; cached files may go stale")
		return nil
	}
	logger.Info().Str("dir", tree.Base()).Msg("Watching tree for changes")
	return w
}

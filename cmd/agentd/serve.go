package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lowkaihon/agentd/internal/config"
	"github.com/lowkaihon/agentd/internal/facade"
	"github.com/lowkaihon/agentd/internal/logging"
	"github.com/lowkaihon/agentd/internal/projects"
	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/sshfs"
	"github.com/lowkaihon/agentd/internal/transport"
	"github.com/lowkaihon/agentd/internal/turn"
	"github.com/lowkaihon/agentd/internal/workspace"
)

// newWorkspaceFactory resolves a session's working_directory to either a
// local Workspace or, for an ssh:// composite, one backed by internal/sshfs
// (spec.md §4.A). The SSH connection is kept open for the Workspace's
// lifetime rather than closed per call, since Workspace has no notion of a
// session-scoped teardown hook; it is reclaimed when the process exits.
func newWorkspaceFactory() session.WorkspaceFactory {
	return func(workingDirectory string) (*workspace.Workspace, error) {
		target, ok := sshfs.ParseTarget(workingDirectory)
		if !ok {
			return workspace.New(workingDirectory, nil), nil
		}
		client, err := sshfs.Dial(context.Background(), target.Host, target.User, "", target.Port)
		if err != nil {
			return nil, fmt.Errorf("dial ssh workspace %s: %w", workingDirectory, err)
		}
		return workspace.New(target.Path, client), nil
	}
}

func runServe() error {
	level := "info"
	if flagVerbose {
		level = "debug"
	}
	logging.Init(level, flagPretty)
	log := logging.Named("agentd")

	cfg, err := config.Load(flagProvider)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagDir != "" {
		cfg.DefaultDir = flagDir
	}
	if cfg.DefaultDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.DefaultDir = wd
	}
	addr := cfg.ListenAddr
	if flagAddr != "" {
		addr = flagAddr
	}
	if addr == "" {
		addr = ":8420"
	}

	mgr := session.NewManagerWithTools(cfg.SessionDir, config.NewClientFactory(cfg), newWorkspaceFactory(), config.NewToolsFactory(cfg))

	askUser := transport.NewAskUserBridge()
	engine := turn.NewEngine(mgr, askUser.Ask)
	bridge := transport.NewBridge(mgr, engine, askUser)

	configDir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	projectStore := projects.NewStore(filepath.Join(configDir, "projects.json"))

	fac := facade.New(mgr, bridge, projectStore, cfg.DefaultDir, getVersion())

	srv := &http.Server{
		Addr:    addr,
		Handler: fac.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("default_dir", cfg.DefaultDir).Str("provider", cfg.LLM.Provider).Msg("agentd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

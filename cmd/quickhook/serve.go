package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/karmakaze/quicklog/internal/config"
	"github.com/karmakaze/quicklog/internal/deployment"
	"github.com/karmakaze/quicklog/internal/gitrepo"
	"github.com/karmakaze/quicklog/internal/history"
	"github.com/karmakaze/quicklog/internal/security"
	"github.com/karmakaze/quicklog/internal/server"

	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	port, hasPort, err := parsePort(args)
	if err != nil {
		return err
	}

	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	if hasPort {
		v.Set("port", port)
	}

	path := resolveConfigFile()
	cfg, err := config.LoadWith(v, path)
	if err != nil {
		return err
	}

	logger, closeLog, err := setupLogging(os.Stdout, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closeLog()

	logger.Info("Starting quickhook", "version", version, "config", path)
	if path != "" && cfg.GitHub.Token != "" {
		if err := security.ValidateSecurePermissions(path); err != nil {
			logger.Warn("Config file holds a GitHub token but is not private", "error", err)
		}
	}

	commands, err := deployment.ParseCommands(cfg.CommandLines())
	if err != nil {
		return err
	}

	var head deployment.HeadReader
	repo := gitrepo.New(cfg.WorkDir)
	if sha, err := repo.Head(); err != nil {
		logger.Warn("Work dir is not a readable git working copy; HEAD will not be tracked",
			"work_dir", cfg.WorkDir, "error", err)
	} else {
		head = repo
		branch, _ := repo.Branch()
		logger.Info("Tracking working copy", "work_dir", cfg.WorkDir, "head", sha, "branch", branch)
		if branch != "" && "refs/heads/"+branch != cfg.Target.Ref {
			logger.Warn("Checked out branch differs from target ref", "branch", branch, "ref", cfg.Target.Ref)
		}
	}

	runner := deployment.NewExecRunner(cfg.WorkDir, cfg.CommandTimeout)
	deployer := deployment.NewDeployer(cfg.Target, commands, runner, head, logger)

	var hist *history.History
	if cfg.HistoryDB != "" {
		logger.Info("Opening delivery journal", "db", cfg.HistoryDB)
		hist, err = history.NewHistory(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("failed to initialize history database: %w", err)
		}
		logLastDelivery(cmd.Context(), logger, hist)
	}

	srv := server.NewServer(deployer, hist, logger, server.Options{
		MaxPayloadBytes:    cfg.MaxPayloadBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		WriteTimeout:       server.WriteTimeoutFor(len(commands), cfg.CommandTimeout),
	})
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error("Failed to close delivery journal", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Listening",
		"addr", cfg.Addr(),
		"full_name", cfg.Target.FullName,
		"ref", cfg.Target.Ref,
		"commands", cfg.CommandLines())

	if err := srv.Start(ctx, cfg.Addr()); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Stopped")
	return nil
}

// setupLogging returns a JSON logger writing to console and, when logPath is
// set, appending to logPath. The returned func closes the file.
func setupLogging(console io.Writer, logPath string) (*slog.Logger, func(), error) {
	out := console
	closeFn := func() {}

	if logPath != "" {
		file, err := security.OpenAppendFile(logPath, security.PermLogFile)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(console, file)
		closeFn = func() { file.Close() }
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(handler), closeFn, nil
}

// logLastDelivery reports the newest journal entry so a restart shows where
// the previous run left off.
func logLastDelivery(ctx context.Context, logger *slog.Logger, hist *history.History) {
	last, err := hist.Latest(ctx)
	if err != nil {
		logger.Warn("Could not read delivery journal", "error", err)
		return
	}
	if last == nil {
		logger.Info("Delivery journal is empty")
		return
	}
	logger.Info("Last recorded delivery",
		"id", last.ID,
		"outcome", last.Outcome,
		"ref", last.Ref,
		"received_at", last.ReceivedAt)
}

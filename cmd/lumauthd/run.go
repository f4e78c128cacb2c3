package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hnrobert/lumauth/internal/agent"
	"github.com/hnrobert/lumauth/internal/config"
	"github.com/hnrobert/lumauth/internal/console"
	"github.com/hnrobert/lumauth/internal/helper"
	"github.com/hnrobert/lumauth/internal/identity"
	"github.com/hnrobert/lumauth/internal/logger"
	"github.com/hnrobert/lumauth/internal/polkit"
)

func runAgent(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}
	defer logger.Close()

	if err := cfg.Validate(); err != nil {
		logger.Error("refusing to start: %v", err)
		return err
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("stdin is not a terminal")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord := agent.New(agent.Options{
		Dialer: &helper.Transport{
			SocketPath: cfg.SocketPath,
			HelperPath: cfg.HelperPath,
		},
		Resolver:       identity.NewResolver(cfg.IdentityTimeout),
		Locale:         cfg.Locale,
		MaxAttempts:    cfg.MaxAttempts,
		AttemptTimeout: cfg.AttemptTimeout,
		EventBuffer:    cfg.EventBuffer,
	})

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	if err := polkit.Export(conn, polkit.NewAgent(ctx, coord)); err != nil {
		return fmt.Errorf("export agent: %w", err)
	}
	subject, err := polkit.CurrentSubject()
	if err != nil {
		return err
	}
	authority := polkit.Authority(conn)
	if err := polkit.Register(authority, subject, cfg.Locale); err != nil {
		return err
	}
	defer func() {
		if err := polkit.Unregister(authority, subject); err != nil {
			logger.Warn("%v", err)
		}
	}()

	go func() { _ = coord.Run(ctx) }()

	logger.Info("lumauthd %s ready (config: %s)", version, sourceName(cfg))
	err = console.New(os.Stdin, os.Stdout, cfg.Locale).Run(ctx, coord.Events(), coord.Input())
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func setupLogging(cfg config.Config) error {
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", config.ErrInvalid, err)
	}
	if err := logger.Init(cfg.LogDir); err != nil {
		return fmt.Errorf("init logs in %s: %w", cfg.LogDir, err)
	}
	return nil
}

func sourceName(cfg config.Config) string {
	if cfg.Source == "" {
		return "defaults"
	}
	return cfg.Source
}

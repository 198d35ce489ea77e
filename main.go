package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bodul/xwedit/engine"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		logLevel   string
	)

	root := &cobra.Command{
		Use:          "xwedit",
		Short:        "Crossword grid editor service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides config and PORT")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(serveCmd, newLayoutCmd(), newWordsCmd())
	return root
}

func newLayoutCmd() *cobra.Command {
	var (
		size int
		cols int
		seed uint64
	)
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print a generated block layout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			width := cols
			if width == 0 {
				width = size
			}
			gen := NewLayoutGenerator(nil)
			resp, err := gen.Generate(cmd.Context(), engine.GenerateRequest{Width: width, Height: size, Seed: seed})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().IntVar(&size, "size", 15, "board height, and width unless --cols is set")
	cmd.Flags().IntVar(&cols, "cols", 0, "board width")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed, 0 picks one")
	return cmd
}

func newWordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "words IN OUT",
		Short: "Normalize a word list into a sorted JSON array",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wl, err := LoadWordList(args[0])
			if err != nil {
				return err
			}
			f, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[1], err)
			}
			if err := wl.WriteJSON(f); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", args[1], err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d words to %s\n", wl.Len(), args[1])
			return nil
		},
	}
}

func runServer(ctx context.Context, cfg Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.slogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := NewStore()
	if cfg.Storage.Path != "" {
		db, err := openBadger(cfg.Storage.Path, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		store, err = NewStoreWithDB(db, logger)
		if err != nil {
			return err
		}
		logger.Info("storage opened", "path", cfg.Storage.Path)
	} else {
		logger.Info("storage.path not set, keeping puzzles in memory")
	}

	var words *WordList
	if cfg.DictionaryPath != "" {
		var err error
		words, err = LoadWordList(cfg.DictionaryPath)
		if err != nil {
			return err
		}
		logger.Info("dictionary loaded", "path", cfg.DictionaryPath, "words", words.Len())
	}

	opts := ServerOptions{
		Generator: NewLayoutGenerator(logger),
		Words:     words,
		Limits:    cfg.Limits,
		Logger:    logger,
	}
	if cfg.Gemini.ProjectID != "" {
		gemini, err := NewGeminiClient(ctx, cfg.Gemini)
		if err != nil {
			return fmt.Errorf("init gemini: %w", err)
		}
		opts.Solver = gemini
		logger.Info("gemini solver enabled", "project", cfg.Gemini.ProjectID, "model", gemini.modelName)
	} else {
		logger.Info("GCP_PROJECT_ID not set, solver disabled")
	}

	srv := NewServer(store, opts)
	go srv.SweepLimiters(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

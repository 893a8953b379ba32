package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/finseer-lab/mnemosyne/pkg/cli/config"
	httpctrl "github.com/finseer-lab/mnemosyne/pkg/controller/http"
	"github.com/finseer-lab/mnemosyne/pkg/service/llm"
	"github.com/finseer-lab/mnemosyne/pkg/service/retrieval"
	"github.com/finseer-lab/mnemosyne/pkg/usecase"
	"github.com/finseer-lab/mnemosyne/pkg/utils/logging"
	"github.com/finseer-lab/mnemosyne/pkg/utils/safe"
)

func cmdServe() *cli.Command {
	var addr string
	var searchTimeout time.Duration
	var redisCfg config.Redis
	var repoCfg config.Repository
	var llmCfg config.LLM
	var scoringCfg config.Scoring

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("MNEMOSYNE_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "search-timeout",
			Usage:       "Per-search timeout during retrieval amplification (0 disables)",
			Sources:     cli.EnvVars("MNEMOSYNE_SEARCH_TIMEOUT"),
			Destination: &searchTimeout,
		},
	}

	// Add shared config flags
	flags = append(flags, redisCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, llmCfg.Flags()...)
	flags = append(flags, scoringCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize vector store")
			}
			defer safe.Close(ctx, store)

			cache, err := redisCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize session cache")
			}
			defer safe.Close(ctx, cache)

			llmClient, err := llmCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize LLM client")
			}

			llmSvc, err := llm.New(llmClient)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize language service")
			}

			evaluator, err := scoringCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure scoring evaluator")
			}

			var amplifierOpts []retrieval.Option
			if searchTimeout > 0 {
				amplifierOpts = append(amplifierOpts, retrieval.WithSearchTimeout(searchTimeout))
				logging.Default().Info("Per-search timeout enabled", "timeout", searchTimeout)
			}
			amplifier, err := retrieval.New(llmSvc, store, amplifierOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to build retrieval amplifier")
			}

			uc, err := usecase.New(cache, store, llmSvc,
				usecase.WithEvaluator(evaluator),
				usecase.WithAmplifier(amplifier),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize use cases")
			}
			uc.Memory.SetRelevanceThreshold(scoringCfg.RelevanceThreshold())

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}

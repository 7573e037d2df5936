package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-draftsync/internal/config"
	"github.com/imrishuroy/go-draftsync/internal/logger"
)

func main() {
	cfg := config.Default()
	var cfgPath, envPath string

	root := &cobra.Command{
		Use:          "draftsync-api",
		Short:        "HTTP API that autosaves registration form drafts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envPath); err != nil {
				return fmt.Errorf("load %s: %w", envPath, err)
			}
			if err := config.Load(&cfg, cmd.Flags(), cfgPath); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", os.Getenv("DRAFTSYNC_CONFIG"), "path to a TOML config file")
	root.Flags().StringVar(&envPath, "env-file", ".env", "dotenv file loaded before the environment is read")
	config.BindFlags(root.Flags(), &cfg)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("store", cfg.StoreBackend).Bool("local", cfg.Local).Dur("debounce", cfg.Debounce).Msg("starting draftsync api")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	bgDone := app.startBackground(ctx)
	r := setupRouter(app.handlerConfig())

	if !cfg.Local {
		adapter := ginadapter.New(r)
		lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
			return adapter.ProxyWithContext(ctx, req)
		})
		return nil
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("running local server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received signal, stopping...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("run local server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
	stop()
	<-bgDone
	return nil
}

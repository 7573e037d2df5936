package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-draftsync/internal/aws"
	"github.com/imrishuroy/go-draftsync/internal/config"
	"github.com/imrishuroy/go-draftsync/internal/drafts"
	"github.com/imrishuroy/go-draftsync/internal/logger"
)

// checkBackend rejects stores the worker cannot clean: the conditional
// delete is only implemented for DynamoDB.
func checkBackend(cfg config.Config) error {
	if cfg.StoreBackend != config.BackendDynamoDB {
		return fmt.Errorf("worker requires the %s store backend, got %q", config.BackendDynamoDB, cfg.StoreBackend)
	}
	return nil
}

func main() {
	cfg := config.Default()
	var cfgPath, localBody string

	root := &cobra.Command{
		Use:          "draftsync-worker",
		Short:        "Deletes submitted drafts from the cleanup queue",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(&cfg, cmd.Flags(), cfgPath); err != nil {
				return err
			}
			if err := checkBackend(cfg); err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat)

			clients, err := aws.NewAWSClients(cmd.Context())
			if err != nil {
				return fmt.Errorf("init aws clients: %w", err)
			}
			p := NewProcessor(drafts.NewDynamoStore(clients.DynamoDB, cfg.DynamoTable, cfg.Retention), log)

			// local runs process a single simulated message and exit
			if cfg.Local {
				if localBody == "" {
					body, _ := json.Marshal(aws.CleanupMessage{
						UserID:      "local-user",
						FormType:    drafts.FormOrganizerRegistration,
						SubmittedAt: time.Now().UTC(),
					})
					localBody = string(body)
				}
				event := events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local-1", Body: localBody}}}
				resp, err := p.Handle(cmd.Context(), event)
				if err != nil {
					return err
				}
				if len(resp.BatchItemFailures) > 0 {
					return fmt.Errorf("local message failed")
				}
				return nil
			}

			lambda.Start(p.Handle)
			return nil
		},
	}
	root.Flags().StringVar(&cfgPath, "config", os.Getenv("DRAFTSYNC_CONFIG"), "path to a TOML config file")
	root.Flags().StringVar(&localBody, "local-body", os.Getenv("LOCAL_SQS_BODY"), "message body processed in local mode")
	config.BindFlags(root.Flags(), &cfg)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

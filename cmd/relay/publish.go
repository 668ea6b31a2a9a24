package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/carenest/relay/internal/config"
	"github.com/carenest/relay/internal/docstore"
	"github.com/carenest/relay/internal/publisher"
	"github.com/carenest/relay/internal/trigger"
)

var publishPayload string

var publishCmd = &cobra.Command{
	Use:   "publish <event>",
	Short: "Process one document change event and publish it to the bus",
	Long: `Process one document change event, exactly as the docstore trigger invokes it.

The <event> argument is the trigger's event string, e.g.
databases.main.collections.posts.documents.abc123.create. The changed
document may be passed inline with --payload; otherwise it is fetched from
the document store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.ValidatePublish(); err != nil {
			return err
		}

		store := docstore.New(
			cfg.DocstoreEndpoint,
			cfg.DocstoreProject,
			cfg.DocstoreKey,
			cfg.DatabaseID,
			cfg.PostsCollection,
			cfg.VotesCollection,
		)
		gateway := publisher.NewWSGateway(cfg.BusURL, cfg.BusKey, logger)
		pub := publisher.New(store, gateway, cfg.PostsCollection, cfg.VotesCollection, logger)

		inv := trigger.Invocation{EventType: args[0]}
		if publishPayload != "" {
			if !json.Valid([]byte(publishPayload)) {
				return fmt.Errorf("--payload is not valid JSON")
			}
			inv.Payload = publishPayload
		}

		res := pub.Process(cmd.Context(), inv)

		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Println(string(data))

		if res.Status == publisher.StatusFailed {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishPayload, "payload", "", "changed document as inline JSON (skips the docstore read)")
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/carenest/relay/internal/config"
	"github.com/carenest/relay/internal/events"
	"github.com/carenest/relay/internal/ui"
)

var tailCmd = &cobra.Command{
	Use:   "tail [topic...]",
	Short: "Stream relay topics from the bus to stdout",
	Long: `Stream records from the bus as they are published, one line per record.

With no arguments, all relay topics are tailed. Pass topic names to narrow
the stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.ValidateTail(); err != nil {
			return err
		}

		topics := args
		if len(topics) == 0 {
			topics = events.Topics
		}
		for _, topic := range topics {
			if !events.KnownTopic(topic) {
				return fmt.Errorf("unknown topic %q (known: %v)", topic, events.Topics)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sub, err := events.NewNATSSubscriber(cfg.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats: disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Printf("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		type tailed struct {
			topic   string
			payload []byte
		}
		merged := make(chan tailed, 256)

		for _, topic := range topics {
			ch, cancel, err := sub.Subscribe(topic)
			if err != nil {
				return fmt.Errorf("subscribing to %s: %w", topic, err)
			}
			defer cancel()

			go func(topic string, ch <-chan []byte) {
				for payload := range ch {
					select {
					case merged <- tailed{topic: topic, payload: payload}:
					case <-ctx.Done():
						return
					}
				}
			}(topic, ch)
		}

		color := ui.ShouldUseColor()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg := <-merged:
				if jsonOutput {
					line, err := json.Marshal(struct {
						Topic   string          `json:"topic"`
						Payload json.RawMessage `json:"payload"`
					}{Topic: msg.topic, Payload: msg.payload})
					if err != nil {
						log.Printf("encoding record: %v", err)
						continue
					}
					fmt.Println(string(line))
				} else {
					fmt.Printf("%s\t%s\n", ui.Topic(msg.topic, color), msg.payload)
				}
			}
		}
	},
}

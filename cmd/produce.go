package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamgate/streamgate/internal/config"
	"github.com/streamgate/streamgate/internal/stream"
	"github.com/streamgate/streamgate/internal/util"
)

var (
	produceStream string
	produceConn   string
	produceCount  int
)

var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Publish demo events to a stream (local testing)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if produceStream == "" {
			return fmt.Errorf("--stream is required")
		}
		conn, ok := cfg.Connections[produceConn]
		if !ok || len(conn.Brokers) == 0 {
			return fmt.Errorf("unknown connection %q", produceConn)
		}

		w := stream.NewWriter(conn.Brokers, produceStream)
		defer func() { _ = w.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Printf(">> producing %d demo events to %s", produceCount, produceStream)

		for i := 0; i < produceCount; i++ {
			id := util.New()
			payload, err := json.Marshal(map[string]any{
				"id":       id,
				"n":        i,
				"message":  "demo event",
				"produced": time.Now().UTC().Format(time.RFC3339Nano),
			})
			if err != nil {
				return err
			}

			props := map[string]string{"source": "streamgate-produce"}
			if err := w.Publish(ctx, id, payload, props); err != nil {
				return fmt.Errorf("publish event %d: %w", i, err)
			}
		}

		log.Printf(">> produce completed")
		return nil
	},
}

func init() {
	produceCmd.Flags().StringVar(&produceStream, "stream", "", "stream (topic) to publish to")
	produceCmd.Flags().StringVar(&produceConn, "connection", "default", "named connection from config")
	produceCmd.Flags().IntVar(&produceCount, "count", 10, "number of demo events")
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/relaydeck/streamgroup/internal/config"
	"github.com/relaydeck/streamgroup/internal/redisgroup"
)

var publishPayload string

var publishCmd = &cobra.Command{
	Use:   "publish <channel>",
	Short: "Append one message to a channel's stream",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishPayload, "payload", "", "message payload; read from stdin if omitted")
}

func runPublish(cmd *cobra.Command, args []string) error {
	channel := args[0]

	payload := publishPayload
	if payload == "" {
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			return fmt.Errorf("reading payload from stdin: %w", err)
		}
		payload = string(data)
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.PrimaryRedisServer()})
	defer client.Close()

	pub := redisgroup.NewPublisher(redisgroup.NewRedisGoAdapter(client))
	id, err := pub.Publish(context.Background(), channel, payload)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s as %s\n", payload, channel, id)
	return nil
}

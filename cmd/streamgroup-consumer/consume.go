package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relaydeck/streamgroup/internal/assignment"
	"github.com/relaydeck/streamgroup/internal/config"
	"github.com/relaydeck/streamgroup/internal/logging"
	"github.com/relaydeck/streamgroup/internal/redisgroup"
)

var (
	consumeGroupID  string
	consumeMemberID string
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Join a consumer group and print every delivered message",
	RunE:  runConsume,
}

func init() {
	consumeCmd.Flags().StringVar(&consumeGroupID, "group-id", "", "consumer group id (overrides STREAMGROUP_GROUP_ID)")
	consumeCmd.Flags().StringVar(&consumeMemberID, "member-id", "", "member id within the group (overrides STREAMGROUP_MEMBER_ID, default a generated uuid)")
}

func runConsume(cmd *cobra.Command, args []string) error {
	if consumeGroupID != "" {
		os.Setenv("STREAMGROUP_GROUP_ID", consumeGroupID)
	}
	if consumeMemberID != "" {
		os.Setenv("STREAMGROUP_MEMBER_ID", consumeMemberID)
	} else if os.Getenv("STREAMGROUP_MEMBER_ID") == "" {
		os.Setenv("STREAMGROUP_MEMBER_ID", uuid.NewString())
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.NewComponentLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, logging.ComponentCLI)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logger.Sync()

	client := redis.NewClient(&redis.Options{Addr: cfg.PrimaryRedisServer()})
	defer client.Close()

	streamAdapter := redisgroup.NewRedisGoAdapter(client)
	assignmentAdapter := assignment.NewRedisGoAdapter(client)
	store := assignment.NewRedisStore(assignmentAdapter, cfg.AssignmentTTL)

	factory := func(channel string) redisgroup.Handler {
		return printHandler(logger, channel)
	}

	coord := redisgroup.NewSubscriptionCoordinator(streamAdapter, store, redisgroup.CoordinatorConfig{
		GroupID:         cfg.GroupID,
		MemberID:        cfg.MemberID,
		KeyMissingSleep: cfg.KeyMissingSleep,
		BlockTimeout:    cfg.BlockTimeout,
		BatchSize:       1,
		ListenerConfig: redisgroup.ListenerConfig{
			GroupID:  cfg.GroupID,
			MemberID: cfg.MemberID,
			Interval: cfg.AssignmentListenerInterval,
			ExpiryPolicy: expiryPolicyFor(cfg.RestartOnAssignmentExpiry),
		},
	}, factory, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("shutdown signal received")
		coord.Stop()
		cancel()
	}()

	logger.Info("consumer starting",
		zap.String(logging.FieldGroupID, cfg.GroupID),
		zap.String(logging.FieldMemberID, cfg.MemberID),
	)

	return coord.Run(ctx)
}

func expiryPolicyFor(restart bool) redisgroup.ExpiryPolicy {
	if restart {
		return redisgroup.ExpiryPolicyStopAll
	}
	return redisgroup.ExpiryPolicyKeepRunning
}

func printHandler(logger *zap.Logger, channel string) redisgroup.Handler {
	return func(ctx context.Context, msg redisgroup.RedisMessage) error {
		logger.Info("message received",
			zap.String(logging.FieldChannel, channel),
			zap.String(logging.FieldRecordID, msg.RecordID),
			zap.String("payload", msg.Payload),
		)
		return nil
	}
}

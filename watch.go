package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"google.golang.org/api/googleapi"
	pubsub "google.golang.org/api/pubsub/v1"

	"github.com/Martian-dev/inbox-triage/internal/auth"
	"github.com/Martian-dev/inbox-triage/internal/checkpoint"
	"github.com/Martian-dev/inbox-triage/internal/config"
	"github.com/Martian-dev/inbox-triage/internal/providers/gmail"
)

var (
	watchProject      string
	watchTopic        string
	watchSubscription string
	watchPushEndpoint string
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Register the Gmail push watch and its Pub/Sub plumbing",
		Long: `Stops any existing Gmail watch, ensures the Pub/Sub topic and push
subscription exist, registers a new watch, and seeds the checkpoint
file with the watch's baseline history ID.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch()
		},
	}

	cmd.Flags().StringVar(&watchProject, "project", "", "GCP project ID (defaults to the configured project)")
	cmd.Flags().StringVar(&watchTopic, "topic", "", "Pub/Sub topic name")
	cmd.Flags().StringVar(&watchSubscription, "subscription", "gmail-watch-sub", "push subscription name")
	cmd.Flags().StringVar(&watchPushEndpoint, "push-endpoint", "", "public HTTPS URL Pub/Sub will POST to")
	cmd.MarkFlagRequired("topic")
	cmd.MarkFlagRequired("push-endpoint")

	return cmd
}

func runWatch() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	project := watchProject
	if project == "" {
		project = cfg.Project
	}
	if project == "" {
		return fmt.Errorf("no GCP project: pass --project or set GOOGLE_CLOUD_PROJECT")
	}

	ctx := context.Background()

	resolver := auth.NewResolver(cfg.Project)
	creds, err := resolver.GmailCredentials(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve gmail credentials: %w", err)
	}

	adapter, err := gmail.New(ctx, creds, cfg.GmailUser)
	if err != nil {
		return err
	}

	// A watch may or may not exist; stopping is safe either way
	if err := adapter.StopWatch(ctx); err != nil {
		logger.Warn("failed to stop existing watch", "error", err)
	}

	topicFull := fmt.Sprintf("projects/%s/topics/%s", project, watchTopic)
	subFull := fmt.Sprintf("projects/%s/subscriptions/%s", project, watchSubscription)

	if err := ensurePubSub(ctx, logger, topicFull, subFull); err != nil {
		return err
	}

	historyID, err := adapter.Watch(ctx, topicFull)
	if err != nil {
		return fmt.Errorf("failed to register watch: %w", err)
	}
	logger.Info("watch registered", "topic", topicFull, "history_id", historyID)

	ckpt, err := checkpoint.Open(cfg.StateFile)
	if err != nil {
		return err
	}
	if err := ckpt.Reset(historyID); err != nil {
		return fmt.Errorf("failed to seed checkpoint: %w", err)
	}
	logger.Info("watch baseline saved", "state_file", cfg.StateFile, "last_id", historyID)

	return nil
}

// ensurePubSub creates the topic and push subscription if they do not
// exist. An existing subscription gets its push endpoint refreshed in
// case it changed.
func ensurePubSub(ctx context.Context, logger *slog.Logger, topicFull, subFull string) error {
	svc, err := pubsub.NewService(ctx)
	if err != nil {
		return fmt.Errorf("failed to create pubsub client: %w", err)
	}

	_, err = svc.Projects.Topics.Get(topicFull).Context(ctx).Do()
	if isNotFound(err) {
		if _, err := svc.Projects.Topics.Create(topicFull, &pubsub.Topic{}).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to create topic: %w", err)
		}
		logger.Info("created topic", "topic", topicFull)
	} else if err != nil {
		return fmt.Errorf("failed to get topic: %w", err)
	}

	sub := &pubsub.Subscription{
		Topic:      topicFull,
		PushConfig: &pubsub.PushConfig{PushEndpoint: watchPushEndpoint},
	}
	_, err = svc.Projects.Subscriptions.Create(subFull, sub).Context(ctx).Do()
	switch {
	case err == nil:
		logger.Info("created push subscription", "subscription", subFull, "endpoint", watchPushEndpoint)
	case isAlreadyExists(err):
		req := &pubsub.ModifyPushConfigRequest{
			PushConfig: &pubsub.PushConfig{PushEndpoint: watchPushEndpoint},
		}
		if _, err := svc.Projects.Subscriptions.ModifyPushConfig(subFull, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to update push config: %w", err)
		}
		logger.Info("subscription exists, push config ensured", "subscription", subFull)
	default:
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 409
}

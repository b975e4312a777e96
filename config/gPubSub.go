package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// LeakageRunMessage is published once a leakage run has been persisted.
type LeakageRunMessage struct {
	RunId         string    `json:"run_id"`
	Dataset       string    `json:"dataset"`
	AnalysisDate  string    `json:"analysis_date"`
	TotalExpected string    `json:"total_expected"`
	TotalRealized string    `json:"total_realized"`
	Diff          string    `json:"diff"`
	LeakagePct    *string   `json:"leakage_pct,omitempty"`
	IssueCount    int       `json:"issue_count"`
	HighRiskCount int       `json:"high_risk_count"`
	CorrelationId string    `json:"correlation_id"`
	CompletedAt   time.Time `json:"completed_at"`
}

const pubsubMaxConnectAttempts = 3

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

// PublishRunEventsEnabled reports whether PUBLISH_RUN_EVENTS is switched on.
func PublishRunEventsEnabled() bool {
	return boolFromEnv("PUBLISH_RUN_EVENTS")
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var lastErr error
	for attempt := 1; attempt <= pubsubMaxConnectAttempts; attempt++ {
		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			pubsubClientMu.Lock()
			if pubsubClient == nil {
				pubsubClient = c
			} else {
				// Another goroutine won the race; close ours.
				_ = c.Close()
			}
			c2 := pubsubClient
			pubsubClientMu.Unlock()

			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c2, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		sleep := backoff(attempt)
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		time.Sleep(sleep)
	}
	return nil, fmt.Errorf("pubsub client unavailable: %w", lastErr)
}

// PublishLeakageRunCompleted publishes msg to PUBSUB_RUN_TOPIC and returns the
// server-assigned message ID.
func PublishLeakageRunCompleted(ctx context.Context, msg LeakageRunMessage) (string, error) {
	topicName := os.Getenv("PUBSUB_RUN_TOPIC")
	if topicName == "" {
		return "", errors.New("PUBSUB_RUN_TOPIC is required")
	}

	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := client.Topic(topicName).Publish(ctx, &pubsub.Message{
		Data: msgJSON,
		Attributes: map[string]string{
			"event":   "leakage.run.completed",
			"dataset": msg.Dataset,
		},
	})
	return result.Get(ctx)
}

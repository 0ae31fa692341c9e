package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskConsistencySweep = "identity:sweep"
	TaskDeleteCascade    = "identity:cascade:delete"
)

// Package-level Asynq client (singleton)
var client *asynq.Client

// InitClient initializes the global Asynq client for task enqueueing.
// Must be called before any EnqueueX functions.
func InitClient(redisURL string) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return err
	}

	client = asynq.NewClient(opt)
	return nil
}

// CloseClient closes the Asynq client connection gracefully.
func CloseClient() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// EnqueueDeleteCascade enqueues a delete-mode cascade for an external id
// whose directory row is already gone but whose references linger. Unique
// per key so a sweep finding the same orphan twice enqueues once.
func EnqueueDeleteCascade(externalID string) error {
	payload, err := json.Marshal(map[string]string{
		"external_id": externalID,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(
		TaskDeleteCascade,
		payload,
		asynq.MaxRetry(5),
		asynq.Timeout(2*time.Minute),
		asynq.Unique(time.Hour),
		asynq.Retention(24*time.Hour),
	)

	_, err = client.Enqueue(task)
	return err
}

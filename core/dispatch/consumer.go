// Package dispatch consumes the dispatch queue and hands each message to
// the job initializer. Concurrency across jobs comes from the queue
// infrastructure; each message is handled by one stateless invocation.
package dispatch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"rl-orchestrator/core/initializer"
	"rl-orchestrator/core/platform"
)

const receiveBackoff = 5 * time.Second

// JobInitializer runs the startup state machine for one message.
type JobInitializer interface {
	Initialize(ctx context.Context, msg platform.DispatchMessage) (*initializer.Run, error)
}

// Consumer is the dispatch-queue receive loop.
type Consumer struct {
	queue platform.DispatchQueue
	init  JobInitializer
	log   *logrus.Entry
}

// NewConsumer creates a new dispatch consumer
func NewConsumer(queue platform.DispatchQueue, init JobInitializer) *Consumer {
	return &Consumer{
		queue: queue,
		init:  init,
		log:   logrus.WithField("component", "dispatch"),
	}
}

// Start receives messages until the context is canceled.
func (c *Consumer) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.receiveOne(ctx); err != nil && ctx.Err() == nil {
			c.log.WithError(err).Error("dispatch receive failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
		}
	}
}

func (c *Consumer) receiveOne(ctx context.Context) error {
	msg, ack, err := c.queue.Receive(ctx)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}

	// A handled failure still counts as consumed: the initializer has
	// already persisted FAILED/ERROR statuses. Only a persistence failure
	// leaves the message on the queue for redelivery; the job name keys
	// idempotency on the retry.
	if _, err := c.init.Initialize(ctx, *msg); err != nil {
		c.log.WithError(err).WithField("job_name", msg.JobName).Error("initialization outcome not persisted, leaving message for redelivery")
		return nil
	}

	if err := ack(ctx); err != nil {
		c.log.WithError(err).WithField("job_name", msg.JobName).Warn("failed to delete dispatch message")
	}
	return nil
}

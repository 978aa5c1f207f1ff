package aws

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pkg/errors"

	"rl-orchestrator/core/platform"
)

const (
	messageGroup    = "job-dispatch"
	longPollSeconds = 20
)

// DispatchQueue publishes and consumes dispatch messages on an SQS FIFO
// queue. The message de-duplication ID is the job name, so repeated
// admission attempts for the same job collapse to one dispatch.
type DispatchQueue struct {
	client   *sqs.Client
	queueURL string
}

// NewDispatchQueue creates a new SQS-backed dispatch queue
func NewDispatchQueue(client *sqs.Client, queueURL string) *DispatchQueue {
	return &DispatchQueue{client: client, queueURL: queueURL}
}

// Publish enqueues one dispatch message.
func (q *DispatchQueue) Publish(ctx context.Context, msg platform.DispatchMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal dispatch message")
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(q.queueURL),
		MessageBody:            aws.String(string(body)),
		MessageGroupId:         aws.String(messageGroup),
		MessageDeduplicationId: aws.String(msg.JobName),
	})
	return errors.Wrapf(err, "publish dispatch for job %s", msg.JobName)
}

// Receive long-polls for the next message. The returned ack deletes the
// message; an unacked message is redelivered after the visibility
// timeout.
func (q *DispatchQueue) Receive(ctx context.Context) (*platform.DispatchMessage, func(context.Context) error, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     longPollSeconds,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "receive dispatch message")
	}
	if len(out.Messages) == 0 {
		return nil, nil, nil
	}

	raw := out.Messages[0]
	var msg platform.DispatchMessage
	if err := json.Unmarshal([]byte(aws.ToString(raw.Body)), &msg); err != nil {
		return nil, nil, errors.Wrap(err, "decode dispatch message")
	}

	ack := func(ctx context.Context) error {
		_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: raw.ReceiptHandle,
		})
		return errors.Wrapf(err, "delete dispatch message for job %s", msg.JobName)
	}
	return &msg, ack, nil
}

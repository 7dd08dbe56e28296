package remote

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
)

// SQSAPI is the subset of the SQS client the queue needs.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Queue submits serialized payloads to an execution-intake queue.
type Queue struct {
	client SQSAPI
}

// NewQueue creates a Queue over the given client.
func NewQueue(client SQSAPI) *Queue {
	return &Queue{client: client}
}

// Submit sends body to the queue at queueURL and returns the message id as
// the submission receipt. Failures are not retried.
func (q *Queue) Submit(ctx context.Context, queueURL, body string) (string, error) {
	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("failed to submit payload: %w", err)
	}

	receipt := aws.ToString(out.MessageId)
	zerolog.Ctx(ctx).Debug().
		Str("queue_url", queueURL).
		Str("message_id", receipt).
		Msg("Payload submitted")

	return receipt, nil
}

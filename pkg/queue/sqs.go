package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

// SQSAPI is the subset of the SQS client the queue uses. Tests substitute a
// fake.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue is a Queue backed by one Amazon SQS queue. SQS visibility, delay
// and receipt-handle semantics map 1:1 onto the Queue contract.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
}

// NewSQSQueue builds a queue over the default AWS credential chain.
func NewSQSQueue(ctx context.Context, queueURL string) (*SQSQueue, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewSQSQueueWithClient(sqs.NewFromConfig(cfg), queueURL), nil
}

// NewSQSQueueWithClient builds a queue over an existing client.
func NewSQSQueueWithClient(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL}
}

// Send implements Queue.
func (q *SQSQueue) Send(ctx context.Context, msg *Message) error {
	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL),
		MessageBody:  aws.String(msg.Body),
		DelaySeconds: int32(msg.Delay / time.Second),
	}
	if len(msg.Attributes) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(msg.Attributes))
		for key, value := range msg.Attributes {
			input.MessageAttributes[key] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(value),
			}
		}
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sending message to %s: %w", q.queueURL, err)
	}
	return nil
}

// Receive implements Queue.
func (q *SQSQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]*Message, error) {
	if max <= 0 {
		max = 1
	}
	if max > 10 {
		max = 10
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(max),
		WaitTimeSeconds:       int32(wait / time.Second),
		AttributeNames:        []types.QueueAttributeName{types.QueueAttributeName(types.MessageSystemAttributeNameApproximateReceiveCount)},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("receiving from %s: %w", q.queueURL, err)
	}

	msgs := make([]*Message, 0, len(out.Messages))
	for _, raw := range out.Messages {
		msg := &Message{
			ID:      aws.ToString(raw.MessageId),
			Body:    aws.ToString(raw.Body),
			Receipt: aws.ToString(raw.ReceiptHandle),
		}
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		if count, ok := raw.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			msg.ReceiveCount, _ = strconv.Atoi(count)
		}
		if len(raw.MessageAttributes) > 0 {
			msg.Attributes = make(map[string]string, len(raw.MessageAttributes))
			for key, attr := range raw.MessageAttributes {
				msg.Attributes[key] = aws.ToString(attr.StringValue)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Delete implements Queue.
func (q *SQSQueue) Delete(ctx context.Context, receipt string) error {
	if receipt == "" {
		return nil
	}
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		return fmt.Errorf("deleting message from %s: %w", q.queueURL, err)
	}
	return nil
}

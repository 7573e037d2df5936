package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// CleanupMessage is the payload sent from API -> SQS -> Worker after a
// registration form was submitted.
type CleanupMessage struct {
	UserID      string    `json:"user_id"`
	FormType    string    `json:"form_type"`
	SubmittedAt time.Time `json:"submitted_at"`
	RequestID   string    `json:"request_id,omitempty"`
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Enabled reports whether a queue is configured.
func (p *Publisher) Enabled() bool {
	return p != nil && p.SQS != nil && p.QueueURL != ""
}

// SendCleanupMessage enqueues a draft cleanup request. The form type is also
// sent as a message attribute so the queue can be filtered per form.
func (p *Publisher) SendCleanupMessage(ctx context.Context, msg CleanupMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal cleanup message: %w", err)
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: awsString(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"form_type": {
				DataType:    awsString("String"),
				StringValue: awsString(msg.FormType),
			},
		},
	}
	if msg.RequestID != "" {
		input.MessageAttributes["request_id"] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(msg.RequestID),
		}
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

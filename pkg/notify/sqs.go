package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/shawkym/room-upgrader/pkg/config"
	"github.com/shawkym/room-upgrader/pkg/log"
)

// sqsClient is the subset of the SQS client used by sqsNotifier.
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type sqsNotifier struct {
	name     string
	queueURL string
	client   sqsClient
}

func newSQSNotifier(ctx context.Context, cfg config.NotifierConfig) (Notifier, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("notifier %q missing queue_url", cfg.Name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &sqsNotifier{
		name:     nameOr(cfg, TypeSQS),
		queueURL: cfg.QueueURL,
		client:   sqs.NewFromConfig(awsCfg),
	}, nil
}

func (s *sqsNotifier) Name() string { return s.name }
func (s *sqsNotifier) Type() string { return TypeSQS }

// Notify sends the event to the configured queue.
func (s *sqsNotifier) Notify(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	attrs := make(map[string]sqstypes.MessageAttributeValue)
	for k, v := range evt.attributes() {
		attrs[k] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	out, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(payload)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("send message to sqs: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"notifier":   s.name,
		"message_id": aws.ToString(out.MessageId),
	}).Debug("sqs notification delivered")
	return nil
}

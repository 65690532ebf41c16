package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/shawkym/room-upgrader/pkg/config"
	"github.com/shawkym/room-upgrader/pkg/log"
)

// snsClient is the subset of the SNS client used by snsNotifier.
type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsNotifier struct {
	name     string
	topicARN string
	client   snsClient
}

func newSNSNotifier(ctx context.Context, cfg config.NotifierConfig) (Notifier, error) {
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("notifier %q missing topic_arn", cfg.Name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &snsNotifier{
		name:     nameOr(cfg, TypeSNS),
		topicARN: cfg.TopicARN,
		client:   sns.NewFromConfig(awsCfg),
	}, nil
}

func (s *snsNotifier) Name() string { return s.name }
func (s *snsNotifier) Type() string { return TypeSNS }

// Notify publishes the event to the configured topic.
func (s *snsNotifier) Notify(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	attrs := make(map[string]snstypes.MessageAttributeValue)
	for k, v := range evt.attributes() {
		attrs[k] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Message:           aws.String(string(payload)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("publish to sns: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"notifier":   s.name,
		"message_id": aws.ToString(out.MessageId),
	}).Debug("sns notification delivered")
	return nil
}

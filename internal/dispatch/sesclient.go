package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// RawSender sends one raw MIME message to a single recipient and returns the
// provider message id. The SES client satisfies it in production; tests use
// a fake.
type RawSender interface {
	SendRaw(ctx context.Context, from, to string, raw []byte, configSet string) (string, error)
}

// SESClient is the AWS SES implementation of RawSender.
type SESClient struct {
	client *sesv2.Client
}

// NewSESClient creates an SES client for the given region using the default
// AWS credential chain.
func NewSESClient(ctx context.Context, region string) (*SESClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &SESClient{client: sesv2.NewFromConfig(cfg)}, nil
}

// SendRaw submits a raw email. configSet optionally names the configuration
// set that routes delivery events to the log bucket the reconciler reads.
func (c *SESClient) SendRaw(ctx context.Context, from, to string, raw []byte, configSet string) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}
	if configSet != "" {
		input.ConfigurationSetName = aws.String(configSet)
	}

	out, err := c.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send failed: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Package awsutil loads the aws.Config shared by the DynamoDB, S3 and SQS
// clients.
package awsutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Settings selects a region and, optionally, static keys and an emulator
// endpoint. Without keys the default credential chain applies.
type Settings struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Load resolves the configuration. A non-empty Endpoint becomes the base
// endpoint of every client built from the result.
func Load(ctx context.Context, s Settings) (aws.Config, error) {
	region := strings.TrimSpace(s.Region)
	if region == "" {
		return aws.Config{}, errors.New("aws region is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if s.AccessKeyID != "" || s.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, s.SessionToken),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if endpoint := strings.TrimSpace(s.Endpoint); endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}
	return cfg, nil
}

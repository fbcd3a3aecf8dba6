package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/bnema/cloudwhisper/internal/domain"
)

// SessionSpec describes how to authenticate a session. With neither
// Credentials nor Profile set the ambient credential chain is used.
type SessionSpec struct {
	Region      string
	Credentials *domain.Credentials
	Profile     string
}

func (s SessionSpec) Ambient() bool {
	return s.Credentials == nil && s.Profile == ""
}

type Session struct {
	Region     string
	EC2        EC2API
	S3         S3API
	CloudWatch CloudWatchAPI
	STS        STSAPI
}

type SessionBuilder func(ctx context.Context, spec SessionSpec) (*Session, error)

// NewSDKSession loads an SDK configuration for spec and builds the service
// clients from it.
func NewSDKSession(ctx context.Context, spec SessionSpec) (*Session, error) {
	opts := []func(*config.LoadOptions) error{}
	if spec.Region != "" {
		opts = append(opts, config.WithRegion(spec.Region))
	}
	if spec.Credentials != nil {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			spec.Credentials.AccessKeyID,
			spec.Credentials.SecretAccessKey,
			spec.Credentials.SessionToken,
		)))
	} else if spec.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(spec.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return sessionFromConfig(cfg), nil
}

// bareSession is the last resort when even the ambient configuration cannot
// be loaded. Calls made through it fail and surface as failed results.
func bareSession(region string) *Session {
	return sessionFromConfig(awssdk.Config{Region: region})
}

func sessionFromConfig(cfg awssdk.Config) *Session {
	return &Session{
		Region:     cfg.Region,
		EC2:        ec2.NewFromConfig(cfg),
		S3:         s3.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
		STS:        sts.NewFromConfig(cfg),
	}
}

type identity struct {
	Account string
	ARN     string
}

func callerIdentity(ctx context.Context, api STSAPI) (identity, error) {
	out, err := api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return identity{}, fmt.Errorf("get caller identity: %w", err)
	}

	return identity{Account: awssdk.ToString(out.Account), ARN: awssdk.ToString(out.Arn)}, nil
}

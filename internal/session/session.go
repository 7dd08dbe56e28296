// Package session owns the authenticated AWS handle a deployment uses to
// reach its stack. A Session is created lazily, validated once, and caches
// one client per service. It is owned by a single Deployment instance and is
// not safe for concurrent use.
package session

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
)

// Session wraps an aws.Config for one credential profile and hands out
// cached service clients.
type Session struct {
	Profile string

	cfg          aws.Config
	lambdaClient *lambda.Client
	sqsClient    *sqs.Client
	s3Client     *s3.Client
	sfnClient    *sfn.Client
	dynamoClient *dynamodb.Client
	cfnClient    *cloudformation.Client
	stsClient    *sts.Client
}

// New opens a session for the given profile. An empty profile uses the
// default credential chain.
func New(ctx context.Context, profile string) (*Session, error) {
	var opts []func(*config.LoadOptions) error
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Session{Profile: profile, cfg: cfg}, nil
}

// NewFromConfig wraps an existing aws.Config. Used by tests and by callers
// that already hold a config.
func NewFromConfig(cfg aws.Config, profile string) *Session {
	return &Session{Profile: profile, cfg: cfg}
}

// Validate confirms the session's credentials resolve to an identity.
func (s *Session) Validate(ctx context.Context) error {
	out, err := s.STS().GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("session validation failed for profile %q: %w", s.Profile, err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("profile", s.Profile).
		Str("account", aws.ToString(out.Account)).
		Str("arn", aws.ToString(out.Arn)).
		Msg("Session validated")

	return nil
}

// Config returns the underlying aws.Config.
func (s *Session) Config() aws.Config {
	return s.cfg
}

// Lambda returns the cached Lambda client.
func (s *Session) Lambda() *lambda.Client {
	if s.lambdaClient == nil {
		s.lambdaClient = lambda.NewFromConfig(s.cfg)
	}
	return s.lambdaClient
}

// SQS returns the cached SQS client.
func (s *Session) SQS() *sqs.Client {
	if s.sqsClient == nil {
		s.sqsClient = sqs.NewFromConfig(s.cfg)
	}
	return s.sqsClient
}

// S3 returns the cached S3 client.
func (s *Session) S3() *s3.Client {
	if s.s3Client == nil {
		s.s3Client = s3.NewFromConfig(s.cfg)
	}
	return s.s3Client
}

// StepFunctions returns the cached Step Functions client.
func (s *Session) StepFunctions() *sfn.Client {
	if s.sfnClient == nil {
		s.sfnClient = sfn.NewFromConfig(s.cfg)
	}
	return s.sfnClient
}

// DynamoDB returns the cached DynamoDB client.
func (s *Session) DynamoDB() *dynamodb.Client {
	if s.dynamoClient == nil {
		s.dynamoClient = dynamodb.NewFromConfig(s.cfg)
	}
	return s.dynamoClient
}

// CloudFormation returns the cached CloudFormation client.
func (s *Session) CloudFormation() *cloudformation.Client {
	if s.cfnClient == nil {
		s.cfnClient = cloudformation.NewFromConfig(s.cfg)
	}
	return s.cfnClient
}

// STS returns the cached STS client.
func (s *Session) STS() *sts.Client {
	if s.stsClient == nil {
		s.stsClient = sts.NewFromConfig(s.cfg)
	}
	return s.stsClient
}

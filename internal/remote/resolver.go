package remote

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/nimbus-pipelines/nimbusctl/internal/errors"
)

// ProcessFunctionSuffix is appended to a stackname to address the stack's
// process function, whose environment is the operational configuration.
const ProcessFunctionSuffix = "-process"

// ConfigResolver resolves a stack's operational configuration.
type ConfigResolver interface {
	Resolve(ctx context.Context, stackname string) (map[string]string, error)
}

// LambdaAPI is the subset of the Lambda client the resolver needs.
type LambdaAPI interface {
	GetFunctionConfiguration(ctx context.Context, params *lambda.GetFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error)
}

// CloudFormationAPI is the subset of the CloudFormation client the resolver
// needs.
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
}

// LambdaConfigResolver reads operational configuration from the environment
// of the stack's process function.
type LambdaConfigResolver struct {
	lambdaClient LambdaAPI
	cfnClient    CloudFormationAPI
}

// NewLambdaConfigResolver creates a resolver over the given clients. The
// CloudFormation client may be nil; it is only used to sharpen not-found
// diagnostics.
func NewLambdaConfigResolver(lambdaClient LambdaAPI, cfnClient CloudFormationAPI) *LambdaConfigResolver {
	return &LambdaConfigResolver{
		lambdaClient: lambdaClient,
		cfnClient:    cfnClient,
	}
}

// Resolve fetches the process function's environment variables for the stack.
func (r *LambdaConfigResolver) Resolve(ctx context.Context, stackname string) (map[string]string, error) {
	functionName := stackname + ProcessFunctionSuffix

	out, err := r.lambdaClient.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
		FunctionName: aws.String(functionName),
	})
	if err != nil {
		var notFound *lambdatypes.ResourceNotFoundException
		if stderrors.As(err, &notFound) {
			return nil, r.notFoundError(ctx, stackname, functionName)
		}
		return nil, fmt.Errorf("failed to resolve configuration for %s: %w", functionName, err)
	}

	env := map[string]string{}
	if out.Environment != nil {
		for k, v := range out.Environment.Variables {
			env[k] = v
		}
	}

	zerolog.Ctx(ctx).Debug().
		Str("stackname", stackname).
		Int("vars", len(env)).
		Msg("Resolved operational configuration")

	return env, nil
}

// notFoundError distinguishes a missing stack from a stack whose process
// function is missing, when a CloudFormation client is available.
func (r *LambdaConfigResolver) notFoundError(ctx context.Context, stackname, functionName string) error {
	if r.cfnClient != nil {
		_, err := r.cfnClient.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
			StackName: aws.String(stackname),
		})
		var apiErr smithy.APIError
		if stderrors.As(err, &apiErr) {
			// DescribeStacks reports a missing stack as a ValidationError.
			return fmt.Errorf("%w: %s", errors.ErrStackNotFound, stackname)
		}
	}
	return fmt.Errorf("%w: %s", errors.ErrFunctionNotFound, functionName)
}

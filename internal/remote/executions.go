package remote

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
)

// SFNAPI is the subset of the Step Functions client the execution service
// needs.
type SFNAPI interface {
	DescribeExecution(ctx context.Context, params *sfn.DescribeExecutionInput, optFns ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error)
}

// ExecutionDetail holds the raw serialized input and output payloads of one
// workflow execution.
type ExecutionDetail struct {
	ARN    string
	Status string
	Input  string
	Output string
}

// Executions fetches execution details from the orchestration engine.
type Executions struct {
	client SFNAPI
}

// NewExecutions creates an Executions service over the given client.
func NewExecutions(client SFNAPI) *Executions {
	return &Executions{client: client}
}

// Describe fetches the detail record for an execution ARN.
func (e *Executions) Describe(ctx context.Context, arn string) (ExecutionDetail, error) {
	out, err := e.client.DescribeExecution(ctx, &sfn.DescribeExecutionInput{
		ExecutionArn: aws.String(arn),
	})
	if err != nil {
		return ExecutionDetail{}, fmt.Errorf("failed to describe execution %s: %w", arn, err)
	}

	return ExecutionDetail{
		ARN:    aws.ToString(out.ExecutionArn),
		Status: string(out.Status),
		Input:  aws.ToString(out.Input),
		Output: aws.ToString(out.Output),
	}, nil
}

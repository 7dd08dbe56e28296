// Package workflow drives the submit→poll→resolve lifecycle of a single
// workflow execution against a deployment.
package workflow

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/nimbus-pipelines/nimbusctl/internal/dao/statedao"
	"github.com/nimbus-pipelines/nimbusctl/internal/deployment"
	"github.com/nimbus-pipelines/nimbusctl/internal/payload"
	"github.com/nimbus-pipelines/nimbusctl/internal/remote"
)

// Workflow state tokens. COMPLETED, FAILED and ABORTED are terminal; any
// other token (including an absent record) means the execution is still in
// progress.
const (
	StateInit      = "INIT"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateAborted   = "ABORTED"
)

const (
	// DefaultPollInterval is the sleep between state polls.
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxMessageSize is the queue transport ceiling; larger payloads
	// are spilled to the payload bucket and submitted as a pointer.
	DefaultMaxMessageSize = 1 << 18

	// noErrorRecorded is reported when a failed execution left no error
	// message behind.
	noErrorRecorded = "last error not recorded"
)

// IsTerminal reports whether a state token ends the poll loop.
func IsTerminal(state string) bool {
	switch state {
	case StateCompleted, StateFailed, StateAborted:
		return true
	}
	return false
}

// Submitter sends a serialized payload to the execution-intake queue.
type Submitter interface {
	Submit(ctx context.Context, queueURL, body string) (string, error)
}

// ObjectPutter stores oversized payloads in the payload bucket.
type ObjectPutter interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
}

// StateFetcher reads the workflow state record for a payload id.
type StateFetcher interface {
	Get(ctx context.Context, payloadID string) (statedao.Record, error)
}

// ExecutionDescriber fetches the detail record of a finished execution.
type ExecutionDescriber interface {
	Describe(ctx context.Context, arn string) (remote.ExecutionDetail, error)
}

// Target addresses the resources of one deployment's stack.
type Target struct {
	QueueURL      string
	PayloadBucket string
}

// Result is the resolved outcome of one run: the parsed output payload on
// success, or the last recorded error otherwise.
type Result struct {
	State     string
	Output    payload.Payload
	LastError string
}

// Document returns the JSON-shaped document a caller should display or
// persist for this result.
func (r Result) Document() any {
	if r.State != StateCompleted {
		return map[string]string{"last_error": r.LastError}
	}
	return r.Output
}

// JSON renders the result document, indented, with a trailing newline.
func (r Result) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r.Document(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render result: %w", err)
	}
	return append(data, '\n'), nil
}

// Runner orchestrates one workflow execution: submit the payload, poll the
// state store until a terminal state, resolve the final output or error.
type Runner struct {
	queue          Submitter
	objects        ObjectPutter
	states         StateFetcher
	executions     ExecutionDescriber
	interval       time.Duration
	maxMessageSize int
}

// New creates a Runner with default poll interval and transport ceiling.
func New(queue Submitter, objects ObjectPutter, states StateFetcher, executions ExecutionDescriber) *Runner {
	return &Runner{
		queue:          queue,
		objects:        objects,
		states:         states,
		executions:     executions,
		interval:       DefaultPollInterval,
		maxMessageSize: DefaultMaxMessageSize,
	}
}

// WithPollInterval overrides the sleep between polls.
func (r *Runner) WithPollInterval(interval time.Duration) *Runner {
	r.interval = interval
	return r
}

// WithMaxMessageSize overrides the transport ceiling.
func (r *Runner) WithMaxMessageSize(size int) *Runner {
	r.maxMessageSize = size
	return r
}

// NewFromDeployment wires a Runner to the deployment's stack resources and
// returns the target addresses from its effective environment.
func NewFromDeployment(ctx context.Context, d *deployment.Deployment) (*Runner, Target, error) {
	sess, err := d.Session(ctx)
	if err != nil {
		return nil, Target{}, err
	}

	queueURL, err := d.EnvValue(deployment.EnvProcessQueueURL)
	if err != nil {
		return nil, Target{}, err
	}
	bucket, err := d.EnvValue(deployment.EnvPayloadBucket)
	if err != nil {
		return nil, Target{}, err
	}
	table, err := d.EnvValue(deployment.EnvStateTable)
	if err != nil {
		return nil, Target{}, err
	}

	runner := New(
		remote.NewQueue(sess.SQS()),
		remote.NewObjectStore(sess.S3()),
		statedao.New(sess.DynamoDB(), table),
		remote.NewExecutions(sess.StepFunctions()),
	)
	return runner, Target{QueueURL: queueURL, PayloadBucket: bucket}, nil
}

// Run submits the payload read from src and blocks until the execution
// reaches a terminal state, honoring ctx cancellation. When force is set the
// payload id gets a time-derived uniqueness suffix so the re-run does not
// collide with a prior terminal record. When out is non-nil the formatted
// result is also written there.
func (r *Runner) Run(ctx context.Context, target Target, src io.Reader, force bool, out io.Writer) (Result, error) {
	logger := zerolog.Ctx(ctx)

	p, err := payload.FromReader(src)
	if err != nil {
		return Result{}, err
	}
	if _, err := p.EnsureID(); err != nil {
		return Result{}, err
	}
	if force {
		p.ForceID(time.Now())
	}
	id := p.ID()

	if _, err := r.Submit(ctx, target, p); err != nil {
		return Result{}, err
	}
	logger.Info().Str("payload_id", id).Msg("Payload submitted, polling for terminal state")

	record, err := r.poll(ctx, id)
	if err != nil {
		return Result{}, err
	}

	result, err := r.resolve(ctx, record)
	if err != nil {
		return Result{}, err
	}

	if out != nil {
		data, err := result.JSON()
		if err != nil {
			return Result{}, err
		}
		if _, err := out.Write(data); err != nil {
			return Result{}, fmt.Errorf("failed to write result: %w", err)
		}
	}

	return result, nil
}

// Submit serializes the payload and sends it to the intake queue, spilling
// oversized payloads to the payload bucket first. Returns the submission
// receipt.
func (r *Runner) Submit(ctx context.Context, target Target, p payload.Payload) (string, error) {
	body, err := p.Bytes()
	if err != nil {
		return "", err
	}

	if len(body) > r.maxMessageSize {
		key := fmt.Sprintf("payloads/%s.json", ksuid.New().String())
		url := remote.ObjectURL(target.PayloadBucket, key)

		zerolog.Ctx(ctx).Warn().
			Int("size", len(body)).
			Str("url", url).
			Msg("Payload exceeds transport ceiling, spilling to payload bucket")

		if err := r.objects.Put(ctx, target.PayloadBucket, key, body); err != nil {
			return "", err
		}
		body, err = json.Marshal(map[string]string{"url": url})
		if err != nil {
			return "", fmt.Errorf("failed to serialize payload pointer: %w", err)
		}
	}

	receipt, err := r.queue.Submit(ctx, target.QueueURL, string(body))
	if err != nil {
		return "", err
	}

	zerolog.Ctx(ctx).Debug().Str("receipt", receipt).Msg("Queue accepted payload")
	return receipt, nil
}

// poll sleeps an interval between state reads and returns the first record
// carrying a terminal state. A record that does not exist yet reads as
// still in progress; any other read failure aborts the run.
func (r *Runner) poll(ctx context.Context, id string) (statedao.Record, error) {
	logger := zerolog.Ctx(ctx)

	state := StateInit
	var record statedao.Record

	for !IsTerminal(state) {
		select {
		case <-ctx.Done():
			return statedao.Record{}, fmt.Errorf("run canceled while polling %s: %w", id, ctx.Err())
		case <-time.After(r.interval):
		}

		rec, err := r.states.Get(ctx, id)
		if err != nil {
			if stderrors.Is(err, statedao.ErrNotFound) {
				logger.Debug().Str("payload_id", id).Msg("No state record yet")
				continue
			}
			return statedao.Record{}, fmt.Errorf("failed to poll state for %s: %w", id, err)
		}

		record = rec
		state = record.State()
		logger.Debug().Str("payload_id", id).Str("state", state).Msg("Polled state")
	}

	return record, nil
}

// resolve turns a terminal state record into the run's result.
func (r *Runner) resolve(ctx context.Context, record statedao.Record) (Result, error) {
	state := record.State()

	if state != StateCompleted {
		lastError := record.LastError
		if lastError == "" {
			lastError = noErrorRecorded
		}
		return Result{State: state, LastError: lastError}, nil
	}

	arn := record.LatestExecution()
	if arn == "" {
		return Result{}, fmt.Errorf("no execution recorded for %s", record.PayloadID)
	}

	detail, err := r.executions.Describe(ctx, arn)
	if err != nil {
		return Result{}, err
	}

	output, err := payload.FromBytes([]byte(detail.Output))
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse execution output for %s: %w", arn, err)
	}

	return Result{State: state, Output: output}, nil
}

// Package statedao reads the pipeline's workflow state table. The state
// machine writes one record per payload id; this side only observes them.
package statedao

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
)

// ErrNotFound is returned when no state record exists for a payload id yet.
// Immediately after submission this is expected; pollers treat it as not yet
// terminal.
var ErrNotFound = errors.New("state record not found")

// StateUnknown is reported when a record carries no recognizable state
// token. The poll loop treats it as still in progress.
const StateUnknown = "UNKNOWN"

// Record represents one payload's state in the pipeline state table.
type Record struct {
	PayloadID    string   `ddb:"hash" dynamodbav:"payload_id"`      // unique payload/workflow identifier
	StateUpdated string   `dynamodbav:"state_updated"`              // {STATE}_{timestamp} composite
	Executions   []string `dynamodbav:"executions,omitempty"`       // execution ARNs, newest last
	LastError    string   `dynamodbav:"last_error,omitempty"`       // recorded on terminal failure
	CreatedAt    int64    `dynamodbav:"created_at"`                 // Unix timestamp
	UpdatedAt    int64    `dynamodbav:"updated_at"`                 // Unix timestamp
}

// State returns the state token from the composite state_updated field.
func (r *Record) State() string {
	if r.StateUpdated == "" {
		return StateUnknown
	}
	state, _, _ := strings.Cut(r.StateUpdated, "_")
	if state == "" {
		return StateUnknown
	}
	return state
}

// LatestExecution returns the most recent execution ARN, or empty when none
// has been recorded yet.
func (r *Record) LatestExecution() string {
	if len(r.Executions) == 0 {
		return ""
	}
	return r.Executions[len(r.Executions)-1]
}

// PayloadKey returns the payload bucket object key holding the input payload
// for a payload id.
func PayloadKey(payloadID string) string {
	return fmt.Sprintf("%s/input.json", payloadID)
}

// DAO provides read access to the workflow state table
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Get retrieves the state record for a payload id.
func (d *DAO) Get(ctx context.Context, payloadID string) (Record, error) {
	var record Record
	err := d.table.Get(payloadID).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		if strings.Contains(err.Error(), "item not found") || strings.Contains(err.Error(), "ItemNotFound") {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, payloadID)
		}
		return Record{}, fmt.Errorf("failed to get state for %s: %w", payloadID, err)
	}

	if record.PayloadID == "" {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, payloadID)
	}

	return record, nil
}

// Put writes a state record. The pipeline owns these records in production;
// this is used by tooling and tests to seed state.
func (d *DAO) Put(ctx context.Context, record Record) error {
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if err := d.table.Put(&record).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put state record: %w", err)
	}
	return nil
}

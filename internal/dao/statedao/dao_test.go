package statedao

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/ddb/v2/ddbtest"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
)

type Data struct {
	DAO *DAO
}

func setup(t *testing.T) (ctx context.Context, data Data, cleanup func()) {
	ctx = context.Background()

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion("us-west-2"),
		config.WithBaseEndpoint("http://localhost:8000"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("blah", "blah", ""),
		),
	)
	assert.NoError(t, err)

	var (
		client    = dynamodb.NewFromConfig(cfg)
		db        = ddb.New(client)
		tableName = fmt.Sprintf("state-test-%v", ksuid.New().String())
		table     = db.MustTable(tableName, Record{})
		dao       = New(client, tableName)
	)

	err = table.CreateTableIfNotExists(ctx)
	assert.NoError(t, err)

	return ctx, Data{DAO: dao}, func() {
		_ = table.DeleteTableIfExists(ctx)
	}
}

func TestDAO(t *testing.T) {
	ddbtest.WithTable[Data](t, setup, func(t *testing.T, ctx context.Context, data Data) {
		dao := data.DAO

		t.Run("PutGet", func(t *testing.T) {
			payloadID := fmt.Sprintf("landsat/workflow-publish/%s", ksuid.New().String())

			err := dao.Put(ctx, Record{
				PayloadID:    payloadID,
				StateUpdated: "PROCESSING_2024-03-01T10:00:00Z",
				Executions:   []string{"arn:aws:states:us-west-2:111111111111:execution:wf:run-1"},
			})
			assert.NoError(t, err)

			record, err := dao.Get(ctx, payloadID)
			assert.NoError(t, err)
			assert.Equal(t, payloadID, record.PayloadID)
			assert.Equal(t, "PROCESSING", record.State())
			assert.Equal(t, "arn:aws:states:us-west-2:111111111111:execution:wf:run-1", record.LatestExecution())
			assert.NotZero(t, record.CreatedAt)
			assert.NotZero(t, record.UpdatedAt)
		})

		t.Run("Get_NotFound", func(t *testing.T) {
			_, err := dao.Get(ctx, "landsat/workflow-publish/does-not-exist")
			assert.Error(t, err)
		})

		t.Run("TerminalFailure", func(t *testing.T) {
			payloadID := fmt.Sprintf("landsat/workflow-publish/%s", ksuid.New().String())

			err := dao.Put(ctx, Record{
				PayloadID:    payloadID,
				StateUpdated: "FAILED_2024-03-01T10:05:00Z",
				LastError:    "step timed out",
			})
			assert.NoError(t, err)

			record, err := dao.Get(ctx, payloadID)
			assert.NoError(t, err)
			assert.Equal(t, "FAILED", record.State())
			assert.Equal(t, "step timed out", record.LastError)
		})
	})
}

func TestRecordState(t *testing.T) {
	tests := []struct {
		name         string
		stateUpdated string
		want         string
	}{
		{name: "composite token", stateUpdated: "COMPLETED_2024-03-01T10:00:00Z", want: "COMPLETED"},
		{name: "bare token", stateUpdated: "PROCESSING", want: "PROCESSING"},
		{name: "empty", stateUpdated: "", want: StateUnknown},
		{name: "leading separator", stateUpdated: "_2024-03-01T10:00:00Z", want: StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := Record{StateUpdated: tt.stateUpdated}
			assert.Equal(t, tt.want, record.State())
		})
	}
}

func TestLatestExecution(t *testing.T) {
	record := Record{Executions: []string{"arn:one", "arn:two"}}
	assert.Equal(t, "arn:two", record.LatestExecution())

	empty := Record{}
	assert.Equal(t, "", empty.LatestExecution())
}

func TestPayloadKey(t *testing.T) {
	assert.Equal(t, "landsat/workflow-publish/item/input.json", PayloadKey("landsat/workflow-publish/item"))
}

package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/coach-nudge/internal/domain"
)

type fakeDynamo struct {
	items []map[string]types.AttributeValue
	query *dynamodb.QueryInput
	err   error
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.query = in
	return &dynamodb.QueryOutput{Items: f.items}, nil
}

type fakeS3 struct {
	key  string
	body string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.key = aws.ToString(in.Key)
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func report() domain.RunReport {
	return domain.RunReport{
		RunID:     "run-1",
		TrainerID: "t1",
		StartedAt: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
		Collected: 12, Scored: 12, Eligible: 5, Selected: 3, Scheduled: 3,
	}
}

func TestReportStore_SaveBothBackends(t *testing.T) {
	d, s := &fakeDynamo{}, &fakeS3{}
	store := newReportStore(d, s, Options{Table: "nudge-runs", Bucket: "reports", Prefix: "nudge-runs/"})

	require.NoError(t, store.SaveRunReport(context.Background(), report()))

	require.Len(t, d.items, 1)
	var item ReportItem
	require.NoError(t, attributevalue.UnmarshalMap(d.items[0], &item))
	assert.Equal(t, "TRAINER#t1", item.PK)
	assert.Equal(t, "2026-03-01T06:00:00Z#run-1", item.SK)
	assert.Equal(t, report().StartedAt.Add(90*24*time.Hour).Unix(), item.TTL)

	assert.Equal(t, "nudge-runs/t1/2026/03/01/run-1.json", s.key)
	assert.True(t, strings.Contains(s.body, `"scheduled":3`))
}

func TestReportStore_SkipsUnconfiguredBackends(t *testing.T) {
	d, s := &fakeDynamo{}, &fakeS3{}
	store := newReportStore(d, s, Options{Bucket: "reports"})

	require.NoError(t, store.SaveRunReport(context.Background(), report()))
	assert.Empty(t, d.items)
	assert.NotEmpty(t, s.key)

	got, err := store.ListRunReports(context.Background(), "t1", 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReportStore_PutError(t *testing.T) {
	store := newReportStore(&fakeDynamo{err: errors.New("throttled")}, &fakeS3{}, Options{Table: "nudge-runs"})
	assert.Error(t, store.SaveRunReport(context.Background(), report()))
}

func TestReportStore_ListRunReports(t *testing.T) {
	d := &fakeDynamo{}
	store := newReportStore(d, &fakeS3{}, Options{Table: "nudge-runs"})
	require.NoError(t, store.SaveRunReport(context.Background(), report()))

	got, err := store.ListRunReports(context.Background(), "t1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, 3, got[0].Scheduled)

	assert.False(t, aws.ToBool(d.query.ScanIndexForward))
	assert.Equal(t, int32(20), aws.ToInt32(d.query.Limit))
}

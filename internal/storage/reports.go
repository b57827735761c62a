// Package storage archives run reports to AWS: one DynamoDB item per run for
// lookups by trainer, plus an optional full JSON copy in S3.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/coach-nudge/internal/domain"
)

const skLayout = "2006-01-02T15:04:05Z"

type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ReportItem is a run report as stored in DynamoDB.
type ReportItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	RunID     string `dynamodbav:"RunID"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// Options configures the report archive.
type Options struct {
	Region    string
	Table     string
	Bucket    string
	Prefix    string
	Retention time.Duration
}

// ReportStore writes and reads run reports. Either backend may be disabled
// by leaving its table or bucket name empty.
type ReportStore struct {
	dynamo dynamoAPI
	s3     s3API
	opts   Options
}

// NewReportStore loads AWS config for the region from the default chain.
func NewReportStore(ctx context.Context, o Options) (*ReportStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(o.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newReportStore(dynamodb.NewFromConfig(cfg), s3.NewFromConfig(cfg), o), nil
}

func newReportStore(d dynamoAPI, s s3API, o Options) *ReportStore {
	if o.Retention <= 0 {
		o.Retention = 90 * 24 * time.Hour
	}
	return &ReportStore{dynamo: d, s3: s, opts: o}
}

func trainerPK(trainerID string) string { return "TRAINER#" + trainerID }

// SaveRunReport writes the report to every configured backend.
func (s *ReportStore) SaveRunReport(ctx context.Context, r domain.RunReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if s.opts.Table != "" {
		item := ReportItem{
			PK:        trainerPK(r.TrainerID),
			SK:        r.StartedAt.UTC().Format(skLayout) + "#" + r.RunID,
			RunID:     r.RunID,
			Data:      string(data),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			TTL:       r.StartedAt.Add(s.opts.Retention).Unix(),
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		if _, err := s.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.opts.Table),
			Item:      av,
		}); err != nil {
			return fmt.Errorf("putting item to DynamoDB: %w", err)
		}
	}

	if s.opts.Bucket != "" {
		key := fmt.Sprintf("%s%s/%s/%s.json", s.opts.Prefix, r.TrainerID,
			r.StartedAt.UTC().Format("2006/01/02"), r.RunID)
		if _, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.opts.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		}); err != nil {
			return fmt.Errorf("putting object to S3: %w", err)
		}
	}
	return nil
}

// ListRunReports returns the trainer's most recent reports, newest first.
func (s *ReportStore) ListRunReports(ctx context.Context, trainerID string, limit int) ([]domain.RunReport, error) {
	if s.opts.Table == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	out, err := s.dynamo.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.opts.Table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: trainerPK(trainerID)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}

	reports := make([]domain.RunReport, 0, len(out.Items))
	for _, raw := range out.Items {
		var item ReportItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			continue
		}
		var r domain.RunReport
		if err := json.NewDecoder(strings.NewReader(item.Data)).Decode(&r); err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}

package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-api/internal/domain"
)

// AuditLogRepo provides typed DynamoDB operations for the audit_logs table.
// PK: audit_id (ULID). GSI user_id-audit_id-index for per-subject history.
type AuditLogRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewAuditLogRepo(client *dynamodb.Client, tableName string) *AuditLogRepo {
	return &AuditLogRepo{client: client, tableName: tableName}
}

func (r *AuditLogRepo) Put(ctx context.Context, entry *domain.AuditLog) error {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("marshal audit log: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put audit log: %w", domain.ErrStorageUnavailable)
	}
	return nil
}

// ListByUser returns up to limit entries for the subject, newest first.
func (r *AuditLogRepo) ListByUser(ctx context.Context, userID string, limit int32) ([]domain.AuditLog, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-audit_id-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", domain.ErrStorageUnavailable)
	}
	var logs []domain.AuditLog
	for _, item := range out.Items {
		var l domain.AuditLog
		if err := attributevalue.UnmarshalMap(item, &l); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, nil
}

package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-api/internal/domain"
)

// passcodeClient is the slice of the DynamoDB API the repo uses.
// *dynamodb.Client satisfies it; tests substitute a fake.
type passcodeClient interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// PasscodeRepo provides typed DynamoDB operations for the passcodes table.
// PK: passcode_id (ULID — lexicographically sortable by creation time).
// GSI email-index: PK email, SK passcode_id.
type PasscodeRepo struct {
	client    passcodeClient
	tableName string
}

func NewPasscodeRepo(client *dynamodb.Client, tableName string) *PasscodeRepo {
	return &PasscodeRepo{client: client, tableName: tableName}
}

// InsertSuperseding persists the new passcode and marks every existing unused
// passcode for the same (email, purpose) as used, in a single transaction.
// The supersession is therefore visible before (or together with) the new
// code — two codes are never simultaneously redeemable.
func (r *PasscodeRepo) InsertSuperseding(ctx context.Context, p *domain.Passcode) error {
	stale, err := r.listUnused(ctx, p.Email, p.Purpose)
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal passcode: %w", err)
	}

	writes := make([]types.TransactWriteItem, 0, len(stale)+1)
	for _, old := range stale {
		writes = append(writes, types.TransactWriteItem{
			Update: &types.Update{
				TableName:        aws.String(r.tableName),
				Key:              strKey("passcode_id", old.PasscodeID),
				UpdateExpression: aws.String("SET #u = :true"),
				ExpressionAttributeNames: map[string]string{
					"#u": fieldUsed,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":true": &types.AttributeValueMemberBOOL{Value: true},
				},
			},
		})
	}
	writes = append(writes, types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(r.tableName),
			Item:      item,
		},
	})

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	}); err != nil {
		return fmt.Errorf("insert passcode: %w", domain.ErrStorageUnavailable)
	}
	return nil
}

// LatestUnused returns the most recently created unused passcode matching
// (email, code, purpose), or ErrNotFound.
func (r *PasscodeRepo) LatestUnused(ctx context.Context, email, code, purpose string) (*domain.Passcode, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("email-index"),
		KeyConditionExpression: aws.String("email = :email"),
		FilterExpression:       aws.String("#c = :code AND purpose = :purpose AND #u = :false"),
		ExpressionAttributeNames: map[string]string{
			"#c": "code", // reserved word in DynamoDB expressions
			"#u": fieldUsed,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email":   &types.AttributeValueMemberS{Value: email},
			":code":    &types.AttributeValueMemberS{Value: code},
			":purpose": &types.AttributeValueMemberS{Value: purpose},
			":false":   &types.AttributeValueMemberBOOL{Value: false},
		},
		ScanIndexForward: aws.Bool(false), // newest first — ULID sort key
	})
	if err != nil {
		return nil, fmt.Errorf("query passcodes: %w", domain.ErrStorageUnavailable)
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("passcode not found: %w", domain.ErrNotFound)
	}
	var p domain.Passcode
	if err := attributevalue.UnmarshalMap(out.Items[0], &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkUsed flips the used flag with a conditional write. Only one of any
// number of concurrent redeemers can win; the rest get ErrNotFound.
// The store condition is the mutual-exclusion mechanism — workers may be
// distributed, so no in-memory lock would do.
func (r *PasscodeRepo) MarkUsed(ctx context.Context, passcodeID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("passcode_id", passcodeID),
		UpdateExpression:    aws.String("SET #u = :true"),
		ConditionExpression: aws.String("#u = :false"),
		ExpressionAttributeNames: map[string]string{
			"#u": fieldUsed,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":  &types.AttributeValueMemberBOOL{Value: true},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("passcode already used: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("mark passcode used: %w", domain.ErrStorageUnavailable)
	}
	return nil
}

func (r *PasscodeRepo) listUnused(ctx context.Context, email, purpose string) ([]domain.Passcode, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("email-index"),
		KeyConditionExpression: aws.String("email = :email"),
		FilterExpression:       aws.String("purpose = :purpose AND #u = :false"),
		ExpressionAttributeNames: map[string]string{
			"#u": fieldUsed,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email":   &types.AttributeValueMemberS{Value: email},
			":purpose": &types.AttributeValueMemberS{Value: purpose},
			":false":   &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query passcodes: %w", domain.ErrStorageUnavailable)
	}
	var codes []domain.Passcode
	for _, item := range out.Items {
		var p domain.Passcode
		if err := attributevalue.UnmarshalMap(item, &p); err != nil {
			return nil, err
		}
		codes = append(codes, p)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].PasscodeID < codes[j].PasscodeID })
	return codes, nil
}

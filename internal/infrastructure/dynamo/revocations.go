package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-api/internal/domain"
)

// revocationClient is the slice of the DynamoDB API the repo uses.
// *dynamodb.Client satisfies it; tests substitute a fake.
type revocationClient interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// RevocationRepo is the persistent revocation ledger.
// PK: jti. GSI user_id-index for bulk revoke-by-subject.
// Absence of an entry means "not known to be revoked" — the ledger is
// open-world; a credential is trusted unless explicitly found here.
type RevocationRepo struct {
	client    revocationClient
	tableName string
}

func NewRevocationRepo(client *dynamodb.Client, tableName string) *RevocationRepo {
	return &RevocationRepo{client: client, tableName: tableName}
}

// Revoke records the JTI as revoked. Idempotent: re-revoking an already
// recorded entry updates it in place rather than erroring. UpdateItem gives
// insert-or-update semantics in one round trip.
func (r *RevocationRepo) Revoke(ctx context.Context, jti, userID, kind string, expiresAt time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("jti", jti),
		UpdateExpression: aws.String("SET user_id = :uid, token_kind = :kind, expires_at = :exp, revoked = :true, created_at = if_not_exists(created_at, :now)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":  &types.AttributeValueMemberS{Value: userID},
			":kind": &types.AttributeValueMemberS{Value: kind},
			":exp":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiresAt.Unix())},
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":now":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("revoke token: %w", domain.ErrStorageUnavailable)
	}
	return nil
}

// IsRevoked reports whether the JTI has been explicitly revoked.
func (r *RevocationRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("jti", jti),
	})
	if err != nil {
		return false, fmt.Errorf("lookup revocation: %w", domain.ErrStorageUnavailable)
	}
	if out.Item == nil {
		return false, nil
	}
	var e domain.RevocationEntry
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return false, err
	}
	return e.Revoked, nil
}

// RevokeAll marks every non-revoked entry for the subject as revoked and
// returns how many entries it touched. Only previously recorded JTIs are
// affected: credentials that never passed through Revoke are not covered.
func (r *RevocationRepo) RevokeAll(ctx context.Context, userID string) (int, error) {
	count := 0
	var firstErr error
	var startKey map[string]types.AttributeValue

	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String("user_id-index"),
			KeyConditionExpression: aws.String("user_id = :uid"),
			FilterExpression:       aws.String("revoked = :false"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid":   &types.AttributeValueMemberS{Value: userID},
				":false": &types.AttributeValueMemberBOOL{Value: false},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return count, fmt.Errorf("query revocations: %w", domain.ErrStorageUnavailable)
		}

		for _, item := range out.Items {
			jtiAttr, ok := item["jti"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if _, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName:        aws.String(r.tableName),
				Key:              strKey("jti", jtiAttr.Value),
				UpdateExpression: aws.String("SET revoked = :true"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":true": &types.AttributeValueMemberBOOL{Value: true},
				},
			}); err != nil {
				slog.Warn("failed to revoke token during bulk revoke", "jti", jtiAttr.Value, "user_id", userID, "err", err)
				if firstErr == nil {
					firstErr = fmt.Errorf("bulk revoke: %w", domain.ErrStorageUnavailable)
				}
				continue
			}
			count++
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return count, firstErr
}

// PruneExpired deletes entries whose recorded expiry has passed and returns
// the number removed. Safe: the codec already rejects expired credentials
// regardless of ledger state. Runs off the request path.
func (r *RevocationRepo) PruneExpired(ctx context.Context) (int, error) {
	now := time.Now().Unix()
	deleted := 0
	var startKey map[string]types.AttributeValue

	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(r.tableName),
			FilterExpression: aws.String("expires_at < :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return deleted, fmt.Errorf("scan revocations: %w", domain.ErrStorageUnavailable)
		}
		for _, item := range out.Items {
			jtiAttr, ok := item["jti"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(r.tableName),
				Key:       strKey("jti", jtiAttr.Value),
			}); err != nil {
				slog.Warn("failed to prune revocation entry", "jti", jtiAttr.Value, "err", err)
				continue
			}
			deleted++
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return deleted, nil
}

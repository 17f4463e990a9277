package dynamo

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRevocationClient struct {
	queryPages []*dynamodb.QueryOutput
	queryIn    []*dynamodb.QueryInput
	updateIn   []*dynamodb.UpdateItemInput
}

func (f *fakeRevocationClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryIn = append(f.queryIn, in)
	page := f.queryPages[0]
	f.queryPages = f.queryPages[1:]
	return page, nil
}

func (f *fakeRevocationClient) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateIn = append(f.updateIn, in)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeRevocationClient) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeRevocationClient) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return &dynamodb.ScanOutput{}, nil
}

func (f *fakeRevocationClient) DeleteItem(_ context.Context, _ *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func jtiItem(jti string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"jti": &types.AttributeValueMemberS{Value: jti},
	}
}

func TestRevokeAll_FollowsQueryPagination(t *testing.T) {
	cursor := map[string]types.AttributeValue{"jti": &types.AttributeValueMemberS{Value: "j-2"}}
	fake := &fakeRevocationClient{
		queryPages: []*dynamodb.QueryOutput{
			{
				Items:            []map[string]types.AttributeValue{jtiItem("j-1"), jtiItem("j-2")},
				LastEvaluatedKey: cursor,
			},
			{
				Items: []map[string]types.AttributeValue{jtiItem("j-3")},
			},
		},
	}
	repo := &RevocationRepo{client: fake, tableName: "revocations"}

	count, err := repo.RevokeAll(context.Background(), "u1")
	require.NoError(t, err)

	// Entries on every page get revoked, not just the first page's.
	assert.Equal(t, 3, count)
	require.Len(t, fake.updateIn, 3)
	var revoked []string
	for _, in := range fake.updateIn {
		key := in.Key["jti"].(*types.AttributeValueMemberS)
		revoked = append(revoked, key.Value)
	}
	assert.ElementsMatch(t, []string{"j-1", "j-2", "j-3"}, revoked)

	require.Len(t, fake.queryIn, 2)
	assert.Nil(t, fake.queryIn[0].ExclusiveStartKey)
	assert.Equal(t, cursor, fake.queryIn[1].ExclusiveStartKey)
}

func TestRevokeAll_NoEntries(t *testing.T) {
	fake := &fakeRevocationClient{queryPages: []*dynamodb.QueryOutput{{}}}
	repo := &RevocationRepo{client: fake, tableName: "revocations"}

	count, err := repo.RevokeAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, fake.updateIn)
}

func TestIsRevoked_AbsentEntryMeansNotRevoked(t *testing.T) {
	fake := &fakeRevocationClient{}
	repo := &RevocationRepo{client: fake, tableName: "revocations"}

	revoked, err := repo.IsRevoked(context.Background(), "j-unknown")
	require.NoError(t, err)
	assert.False(t, revoked)
}

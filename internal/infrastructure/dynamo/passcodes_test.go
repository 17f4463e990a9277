package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePasscodeClient struct {
	queryOut    *dynamodb.QueryOutput
	queryErr    error
	transactIn  []*dynamodb.TransactWriteItemsInput
	transactErr error
}

func (f *fakePasscodeClient) Query(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryOut, nil
}

func (f *fakePasscodeClient) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transactIn = append(f.transactIn, in)
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakePasscodeClient) UpdateItem(_ context.Context, _ *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return &dynamodb.UpdateItemOutput{}, nil
}

func passcodeItem(t *testing.T, id, code string) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(&domain.Passcode{
		PasscodeID: id,
		Email:      "a@x.com",
		Purpose:    domain.PurposeLogin,
		Code:       code,
		ExpiresAt:  time.Now().Add(10 * time.Minute).Unix(),
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return item
}

func TestInsertSuperseding_BurnsStaleCodesInSameTransaction(t *testing.T) {
	fake := &fakePasscodeClient{
		queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			passcodeItem(t, "01OLD1", "111111"),
			passcodeItem(t, "01OLD2", "222222"),
		}},
	}
	repo := &PasscodeRepo{client: fake, tableName: "passcodes"}

	fresh := &domain.Passcode{
		PasscodeID: "01NEW",
		Email:      "a@x.com",
		Purpose:    domain.PurposeLogin,
		Code:       "333333",
		ExpiresAt:  time.Now().Add(10 * time.Minute).Unix(),
	}
	require.NoError(t, repo.InsertSuperseding(context.Background(), fresh))

	// Everything rides in one TransactWriteItems call: both stale codes
	// flipped to used, plus the put of the new one.
	require.Len(t, fake.transactIn, 1)
	writes := fake.transactIn[0].TransactItems
	require.Len(t, writes, 3)

	burned := map[string]bool{}
	var put *types.Put
	for _, w := range writes {
		switch {
		case w.Update != nil:
			key, ok := w.Update.Key["passcode_id"].(*types.AttributeValueMemberS)
			require.True(t, ok)
			burned[key.Value] = true
			assert.Equal(t, "SET #u = :true", *w.Update.UpdateExpression)
			assert.Equal(t, fieldUsed, w.Update.ExpressionAttributeNames["#u"])
		case w.Put != nil:
			put = w.Put
		}
	}
	assert.Equal(t, map[string]bool{"01OLD1": true, "01OLD2": true}, burned)

	require.NotNil(t, put)
	id, ok := put.Item["passcode_id"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "01NEW", id.Value)
}

func TestInsertSuperseding_NoStaleCodes_PutOnly(t *testing.T) {
	fake := &fakePasscodeClient{queryOut: &dynamodb.QueryOutput{}}
	repo := &PasscodeRepo{client: fake, tableName: "passcodes"}

	fresh := &domain.Passcode{PasscodeID: "01NEW", Email: "a@x.com", Purpose: domain.PurposeRegistration, Code: "123456"}
	require.NoError(t, repo.InsertSuperseding(context.Background(), fresh))

	require.Len(t, fake.transactIn, 1)
	writes := fake.transactIn[0].TransactItems
	require.Len(t, writes, 1)
	assert.NotNil(t, writes[0].Put)
}

func TestInsertSuperseding_TransactFaultSurfacesStorageError(t *testing.T) {
	fake := &fakePasscodeClient{
		queryOut:    &dynamodb.QueryOutput{},
		transactErr: errors.New("throttled"),
	}
	repo := &PasscodeRepo{client: fake, tableName: "passcodes"}

	err := repo.InsertSuperseding(context.Background(), &domain.Passcode{PasscodeID: "01NEW", Email: "a@x.com"})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

package dynamo

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory single-table stand-in for the DynamoDB API. It
// understands only the condition expressions the repository issues.
type fakeDynamo struct {
	mu           sync.Mutex
	items        map[string]map[string]types.AttributeValue
	tableCreated bool

	getErr   error
	scanErr  error
	writeErr error
	// beforeWrite runs inside TransactWriteItems before conditions are checked.
	beforeWrite func()

	transactCalls int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}, tableCreated: true}
}

func pkOf(key map[string]types.AttributeValue) string {
	if v, ok := key["pk"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	item, ok := f.items[pkOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: maps.Clone(item)}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanErr != nil {
		return nil, f.scanErr
	}

	var want string
	if aws.ToString(in.FilterExpression) == filterUsers {
		want = in.ExpressionAttributeValues[":entity_type"].(*types.AttributeValueMemberS).Value
	}

	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		if want != "" {
			if et, ok := item["entity_type"].(*types.AttributeValueMemberS); !ok || et.Value != want {
				continue
			}
		}
		out.Items = append(out.Items, maps.Clone(item))
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func (f *fakeDynamo) check(pk, cond string, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	item, exists := f.items[pk]
	switch cond {
	case "":
		return true, nil
	case condNotExists:
		return !exists, nil
	case condExists:
		return exists, nil
	case condExistsVersioned:
		if !exists {
			return false, nil
		}
		got, _ := item[names["#version"]].(*types.AttributeValueMemberN)
		want, _ := values[":expected_version"].(*types.AttributeValueMemberN)
		return got != nil && want != nil && got.Value == want.Value, nil
	default:
		return false, fmt.Errorf("fake: unsupported condition %q", cond)
	}
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactCalls++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if f.beforeWrite != nil {
		f.beforeWrite()
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	cancelled := false
	for i, ti := range in.TransactItems {
		var (
			pk     string
			cond   string
			names  map[string]string
			values map[string]types.AttributeValue
		)
		switch {
		case ti.Put != nil:
			pk, cond = pkOf(ti.Put.Item), aws.ToString(ti.Put.ConditionExpression)
			names, values = ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues
		case ti.Delete != nil:
			pk, cond = pkOf(ti.Delete.Key), aws.ToString(ti.Delete.ConditionExpression)
			names, values = ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues
		default:
			return nil, fmt.Errorf("fake: unsupported transact item %d", i)
		}

		ok, err := f.check(pk, cond, names, values)
		if err != nil {
			return nil, err
		}
		reasons[i].Code = aws.String("None")
		if !ok {
			reasons[i].Code = aws.String(conditionFailed)
			cancelled = true
		}
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		if ti.Put != nil {
			f.items[pkOf(ti.Put.Item)] = maps.Clone(ti.Put.Item)
		} else {
			delete(f.items, pkOf(ti.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tableCreated {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tableCreated {
		return nil, &types.ResourceInUseException{Message: aws.String("table exists")}
	}
	f.tableCreated = true
	return &dynamodb.CreateTableOutput{TableDescription: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusCreating,
	}}, nil
}

func (f *fakeDynamo) count(entityType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, item := range f.items {
		if et, ok := item["entity_type"].(*types.AttributeValueMemberS); ok && et.Value == entityType {
			n++
		}
	}
	return n
}

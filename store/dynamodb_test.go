package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/GoCodeAlone/todos/keygen"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamoDBClient is an in-memory DynamoDBClient that understands the
// expressions DynamoDBStore issues.
type fakeDynamoDBClient struct {
	mu       sync.Mutex
	items    map[string]map[string]map[string]dbtypes.AttributeValue // pk -> sk -> item
	pageSize int
	tableUp  bool
	queries  int
	failWith error
}

func newFakeDynamoDBClient() *fakeDynamoDBClient {
	return &fakeDynamoDBClient{
		items:    make(map[string]map[string]map[string]dbtypes.AttributeValue),
		pageSize: 2,
		tableUp:  true,
	}
}

func attrS(item map[string]dbtypes.AttributeValue, name string) string {
	if v, ok := item[name].(*dbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamoDBClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	pk, sk := attrS(in.Item, "pk"), attrS(in.Item, "sk")
	if f.items[pk] == nil {
		f.items[pk] = make(map[string]map[string]dbtypes.AttributeValue)
	}
	if in.ConditionExpression != nil && f.items[pk][sk] != nil {
		return nil, &dbtypes.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	item := make(map[string]dbtypes.AttributeValue, len(in.Item))
	for k, v := range in.Item {
		item[k] = v
	}
	f.items[pk][sk] = item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDBClient) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	pk, sk := attrS(in.Key, "pk"), attrS(in.Key, "sk")
	if f.items[pk] == nil {
		f.items[pk] = make(map[string]map[string]dbtypes.AttributeValue)
	}
	item := f.items[pk][sk]
	if item == nil {
		item = map[string]dbtypes.AttributeValue{"pk": in.Key["pk"], "sk": in.Key["sk"]}
		f.items[pk][sk] = item
	}
	if in.UpdateExpression == nil {
		return &dynamodb.UpdateItemOutput{}, nil
	}
	setExpr, removeExpr, _ := strings.Cut(*in.UpdateExpression, "REMOVE ")
	if setExpr = strings.TrimSpace(setExpr); setExpr != "" {
		for _, clause := range strings.Split(strings.TrimPrefix(setExpr, "SET "), ", ") {
			name, value, ok := strings.Cut(clause, " = ")
			if !ok {
				return nil, errors.New("fake: unsupported update clause " + clause)
			}
			item[in.ExpressionAttributeNames[name]] = in.ExpressionAttributeValues[value]
		}
	}
	if removeExpr != "" {
		for _, name := range strings.Split(removeExpr, ", ") {
			delete(item, in.ExpressionAttributeNames[name])
		}
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamoDBClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	delete(f.items[attrS(in.Key, "pk")], attrS(in.Key, "sk"))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamoDBClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.queries++
	pk := attrS(in.ExpressionAttributeValues, ":pk")
	partition := f.items[pk]

	sks := make([]string, 0, len(partition))
	for sk := range partition {
		sks = append(sks, sk)
	}
	sort.Strings(sks)

	start := 0
	if in.ExclusiveStartKey != nil {
		after := attrS(in.ExclusiveStartKey, "sk")
		start = sort.SearchStrings(sks, after)
		if start < len(sks) && sks[start] == after {
			start++
		}
	}
	end := min(start+f.pageSize, len(sks))

	out := &dynamodb.QueryOutput{}
	for _, sk := range sks[start:end] {
		out.Items = append(out.Items, partition[sk])
	}
	if end < len(sks) {
		out.LastEvaluatedKey = map[string]dbtypes.AttributeValue{
			"pk": &dbtypes.AttributeValueMemberS{Value: pk},
			"sk": &dbtypes.AttributeValueMemberS{Value: sks[end-1]},
		}
	}
	return out, nil
}

func (f *fakeDynamoDBClient) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tableUp {
		return nil, &dbtypes.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &dbtypes.TableDescription{TableName: in.TableName, TableStatus: dbtypes.TableStatusActive},
	}, nil
}

func (f *fakeDynamoDBClient) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tableUp = true
	return &dynamodb.CreateTableOutput{
		TableDescription: &dbtypes.TableDescription{TableName: in.TableName, TableStatus: dbtypes.TableStatusCreating},
	}, nil
}

func TestDynamoDBStore_Conformance(t *testing.T) {
	s := NewDynamoDBStoreWithClient(newFakeDynamoDBClient(), "todos", keygen.NewPushIDGenerator())
	runConformance(t, s, conformanceOptions{})
}

func TestDynamoDBStore_FollowsPagination(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamoDBClient()
	s := NewDynamoDBStoreWithClient(client, "todos", keygen.NewPushIDGenerator())

	for i := range 5 {
		if _, err := s.Insert(ctx, "todos", Record{"i": int64(i)}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	entries, err := s.FetchAll(ctx, "todos")
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(entries))
	}
	for i, e := range entries {
		if e.Record["i"] != int64(i) {
			t.Errorf("entry %d = %v, want i=%d", i, e.Record, i)
		}
	}
	if client.queries != 3 {
		t.Errorf("queries = %d, want 3 pages", client.queries)
	}
}

func TestDynamoDBStore_ItemLayout(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamoDBClient()
	s := NewDynamoDBStoreWithClient(client, "todos", keygen.NewPushIDGenerator())

	key, err := s.Insert(ctx, "lists", Record{"title": "a", "": "empty name"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	item := client.items["lists"][key]
	if item == nil {
		t.Fatalf("item %s not stored under partition lists", key)
	}
	if got := attrS(item, "f:title"); got != `"a"` {
		t.Errorf("f:title = %q, want %q", got, `"a"`)
	}
	if got := attrS(item, "f:"); got != `"empty name"` {
		t.Errorf("f: = %q, want %q", got, `"empty name"`)
	}

	if err := s.UpdateFields(ctx, "lists", key, Record{"title": nil, "done": true}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	item = client.items["lists"][key]
	if _, ok := item["f:title"]; ok {
		t.Error("f:title still present after a null update")
	}
	if got := attrS(item, "f:done"); got != "true" {
		t.Errorf("f:done = %q, want true", got)
	}
}

func TestDynamoDBStore_InsertConflictIsBackendFailure(t *testing.T) {
	ctx := context.Background()
	client := newFakeDynamoDBClient()
	s := NewDynamoDBStoreWithClient(client, "todos", fixedKey("dup"))

	if _, err := s.Insert(ctx, "todos", Record{"a": 1}); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	_, err := s.Insert(ctx, "todos", Record{"a": 2})
	if !IsBackendFailure(err) {
		t.Fatalf("second Insert = %v, want backend failure", err)
	}
	var conflict *dbtypes.ConditionalCheckFailedException
	if !errors.As(err, &conflict) {
		t.Errorf("expected ConditionalCheckFailedException in chain, got %T", errors.Unwrap(err))
	}
}

func TestDynamoDBStore_BackendFailure(t *testing.T) {
	client := newFakeDynamoDBClient()
	client.failWith = errors.New("ProvisionedThroughputExceededException: slow down")
	s := NewDynamoDBStoreWithClient(client, "todos", keygen.NewPushIDGenerator())

	_, err := s.FetchAll(context.Background(), "todos")
	if !IsBackendFailure(err) {
		t.Fatalf("FetchAll = %v, want backend failure", err)
	}
	if err.Error() != "ProvisionedThroughputExceededException: slow down" {
		t.Errorf("error text = %q, want backend message unchanged", err.Error())
	}
}

func TestDynamoDBStore_EnsureTable(t *testing.T) {
	client := newFakeDynamoDBClient()
	client.tableUp = false
	s := NewDynamoDBStoreWithClient(client, "todos", keygen.NewPushIDGenerator())

	if err := s.ensureTable(context.Background()); err != nil {
		t.Fatalf("ensureTable: %v", err)
	}
	if !client.tableUp {
		t.Error("table was not created")
	}
	// Second call finds the table and does nothing.
	if err := s.ensureTable(context.Background()); err != nil {
		t.Fatalf("ensureTable on existing table: %v", err)
	}
}

type fixedKey string

func (k fixedKey) NewKey() string { return string(k) }

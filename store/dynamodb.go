package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/GoCodeAlone/todos/keygen"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBClient defines the DynamoDB operations used by DynamoDBStore.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoDBConfig holds settings for the dynamodb backend.
type DynamoDBConfig struct {
	Table           string `yaml:"table" json:"table"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"` //nolint:gosec // config field
	// CreateTable creates the table with on-demand billing when it is missing.
	CreateTable bool `yaml:"create_table" json:"create_table"`
}

const (
	dynamoPartitionKey = "pk"
	dynamoSortKey      = "sk"
	// dynamoFieldPrefix keeps record fields clear of the key attributes and
	// gives the empty field name a valid attribute name.
	dynamoFieldPrefix = "f:"
)

// DynamoDBStore keeps every namespace in one table: the namespace is the
// partition key, the record key is the sort key, and each record field is a
// JSON-encoded string attribute.
type DynamoDBStore struct {
	client DynamoDBClient
	table  string
	keys   keygen.Generator
}

// NewDynamoDBStore builds a client from the default AWS credential chain,
// optionally overridden by static credentials and a custom endpoint.
func NewDynamoDBStore(ctx context.Context, cfg DynamoDBConfig, keys keygen.Generator) (*DynamoDBStore, error) {
	if cfg.Table == "" {
		return nil, errors.New("dynamodb: table name is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: load aws config: %w", err)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	s := NewDynamoDBStoreWithClient(client, cfg.Table, keys)
	if cfg.CreateTable {
		if err := s.ensureTable(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewDynamoDBStoreWithClient creates a DynamoDBStore over an existing client.
func NewDynamoDBStoreWithClient(client DynamoDBClient, table string, keys keygen.Generator) *DynamoDBStore {
	return &DynamoDBStore{client: client, table: table, keys: keys}
}

func (s *DynamoDBStore) ensureTable(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}
	var notFound *dbtypes.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("dynamodb: describe table %s: %w", s.table, err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []dbtypes.AttributeDefinition{
			{AttributeName: aws.String(dynamoPartitionKey), AttributeType: dbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(dynamoSortKey), AttributeType: dbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String(dynamoPartitionKey), KeyType: dbtypes.KeyTypeHash},
			{AttributeName: aws.String(dynamoSortKey), KeyType: dbtypes.KeyTypeRange},
		},
		BillingMode: dbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("dynamodb: create table %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("dynamodb: wait for table %s: %w", s.table, err)
	}
	return nil
}

func (s *DynamoDBStore) itemKey(namespace, key string) map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{
		dynamoPartitionKey: &dbtypes.AttributeValueMemberS{Value: namespace},
		dynamoSortKey:      &dbtypes.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoDBStore) Insert(ctx context.Context, namespace string, rec Record) (string, error) {
	key := s.keys.NewKey()
	encoded, err := encodeFields(rec)
	if err != nil {
		return "", backendErr(OpInsert, namespace, key, err)
	}
	item := s.itemKey(namespace, key)
	for name, v := range encoded {
		item[dynamoFieldPrefix+name] = &dbtypes.AttributeValueMemberS{Value: v}
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(" + dynamoSortKey + ")"),
	})
	if err != nil {
		return "", backendErr(OpInsert, namespace, key, err)
	}
	return key, nil
}

// FetchAll queries the namespace partition. The sort key is a string, so
// DynamoDB returns items in byte order of their keys.
func (s *DynamoDBStore) FetchAll(ctx context.Context, namespace string) ([]Entry, error) {
	var entries []Entry
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": dynamoPartitionKey,
		},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":pk": &dbtypes.AttributeValueMemberS{Value: namespace},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, backendErr(OpFetchAll, namespace, "", err)
		}
		for _, item := range out.Items {
			entry, err := decodeDynamoItem(item)
			if err != nil {
				return nil, backendErr(OpFetchAll, namespace, entry.Key, err)
			}
			entries = append(entries, entry)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

func decodeDynamoItem(item map[string]dbtypes.AttributeValue) (Entry, error) {
	var entry Entry
	sk, ok := item[dynamoSortKey].(*dbtypes.AttributeValueMemberS)
	if !ok {
		return entry, fmt.Errorf("dynamodb: invalid %s attribute type", dynamoSortKey)
	}
	entry.Key = sk.Value

	fields := make(map[string]string, len(item))
	for attr, v := range item {
		name, ok := strings.CutPrefix(attr, dynamoFieldPrefix)
		if !ok {
			continue
		}
		sv, ok := v.(*dbtypes.AttributeValueMemberS)
		if !ok {
			return entry, fmt.Errorf("dynamodb: invalid attribute type for field %q", name)
		}
		fields[name] = sv.Value
	}
	rec, err := decodeFields(fields)
	if err != nil {
		return entry, err
	}
	entry.Record = rec
	return entry, nil
}

// UpdateFields sets one attribute per field and removes the attribute of
// each null field. UpdateItem creates the item when it does not exist and
// leaves unnamed attributes untouched.
func (s *DynamoDBStore) UpdateFields(ctx context.Context, namespace, key string, fields Record) error {
	set, removed := splitNulls(fields)
	encoded, err := encodeFields(set)
	if err != nil {
		return backendErr(OpUpdateFields, namespace, key, err)
	}
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key:       s.itemKey(namespace, key),
	}
	if len(encoded) > 0 || len(removed) > 0 {
		names := make([]string, 0, len(encoded))
		for name := range encoded {
			names = append(names, name)
		}
		sort.Strings(names)

		attrNames := make(map[string]string, len(names)+len(removed))
		var expr []string
		if len(names) > 0 {
			attrValues := make(map[string]dbtypes.AttributeValue, len(names))
			clauses := make([]string, 0, len(names))
			for i, name := range names {
				n, v := "#n"+strconv.Itoa(i), ":v"+strconv.Itoa(i)
				attrNames[n] = dynamoFieldPrefix + name
				attrValues[v] = &dbtypes.AttributeValueMemberS{Value: encoded[name]}
				clauses = append(clauses, n+" = "+v)
			}
			expr = append(expr, "SET "+strings.Join(clauses, ", "))
			input.ExpressionAttributeValues = attrValues
		}
		if len(removed) > 0 {
			clauses := make([]string, 0, len(removed))
			for i, name := range removed {
				n := "#r" + strconv.Itoa(i)
				attrNames[n] = dynamoFieldPrefix + name
				clauses = append(clauses, n)
			}
			expr = append(expr, "REMOVE "+strings.Join(clauses, ", "))
		}
		input.UpdateExpression = aws.String(strings.Join(expr, " "))
		input.ExpressionAttributeNames = attrNames
	}
	_, err = s.client.UpdateItem(ctx, input)
	return backendErr(OpUpdateFields, namespace, key, err)
}

func (s *DynamoDBStore) Remove(ctx context.Context, namespace, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.itemKey(namespace, key),
	})
	return backendErr(OpRemove, namespace, key, err)
}

// Close is a no-op; the AWS client holds no long-lived connections.
func (s *DynamoDBStore) Close() error { return nil }

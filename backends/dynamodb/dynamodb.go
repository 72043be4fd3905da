// Package dynamodb keeps one object per item in a DynamoDB table.
//
// Table layout (partition key "id", string):
//
//	id       S  object id, equal to the name
//	name     S  display name
//	data     B  object content
//	modified S  RFC 3339 timestamp of the last write
//	size     N  content length
//
// Items are limited to 400 KB by DynamoDB; larger updates fail with a
// backend error.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/illarion/cloudvault/storage"
)

const backendName = "dynamodb"

// Attribute names
const (
	AttrID       = "id"
	AttrName     = "name"
	AttrData     = "data"
	AttrModified = "modified"
	AttrSize     = "size"
)

// Client is the subset of *dynamodb.Client used by Storage
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Storage implements storage.Storage on one table
type Storage struct {
	client Client
	table  string
	now    func() time.Time
}

// New creates a Storage for table
func New(client Client, table string) *Storage {
	return &Storage{client: client, table: table, now: time.Now}
}

// existsCondition guards writes that must not create items
var existsCondition = aws.String("attribute_exists(#id)")

func keyOf(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrID: &types.AttributeValueMemberS{Value: id},
	}
}

func (s *Storage) List(ctx context.Context) ([]storage.ObjectMetadata, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:            aws.String(s.table),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("#id, #n, #m, #s"),
		ExpressionAttributeNames: map[string]string{
			"#id": AttrID,
			"#n":  AttrName,
			"#m":  AttrModified,
			"#s":  AttrSize,
		},
	})

	out := []storage.ObjectMetadata{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storage.NewBackendError(backendName, "list", "", err)
		}
		for _, item := range page.Items {
			meta, err := metadataOf(item)
			if err != nil {
				return nil, storage.NewBackendError(backendName, "list", "", err)
			}
			out = append(out, meta)
		}
	}
	return out, nil
}

func metadataOf(item map[string]types.AttributeValue) (storage.ObjectMetadata, error) {
	id, ok := item[AttrID].(*types.AttributeValueMemberS)
	if !ok {
		return storage.ObjectMetadata{}, errors.New("item without string id")
	}
	meta := storage.ObjectMetadata{ID: id.Value, Name: id.Value}
	if name, ok := item[AttrName].(*types.AttributeValueMemberS); ok {
		meta.Name = name.Value
	}
	if modified, ok := item[AttrModified].(*types.AttributeValueMemberS); ok {
		meta.LastModified = modified.Value
	}
	if size, ok := item[AttrSize].(*types.AttributeValueMemberN); ok {
		n, err := strconv.ParseUint(size.Value, 10, 64)
		if err != nil {
			return storage.ObjectMetadata{}, fmt.Errorf("invalid size for %q: %w", id.Value, err)
		}
		meta.Size = n
	}
	return meta, nil
}

func (s *Storage) Create(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", storage.InvalidID(name, "empty id")
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			AttrID:       &types.AttributeValueMemberS{Value: name},
			AttrName:     &types.AttributeValueMemberS{Value: name},
			AttrData:     &types.AttributeValueMemberB{Value: []byte{}},
			AttrModified: &types.AttributeValueMemberS{Value: s.timestamp()},
			AttrSize:     &types.AttributeValueMemberN{Value: "0"},
		},
	})
	if err != nil {
		return "", storage.NewBackendError(backendName, "create", name, err)
	}
	return name, nil
}

func (s *Storage) Get(ctx context.Context, id string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.table),
		Key:                      keyOf(id),
		ConsistentRead:           aws.Bool(true),
		ProjectionExpression:     aws.String("#id, #d"),
		ExpressionAttributeNames: map[string]string{"#id": AttrID, "#d": AttrData},
	})
	if err != nil {
		return nil, storage.NewBackendError(backendName, "get", id, err)
	}
	if len(out.Item) == 0 {
		return nil, storage.NotFound(id)
	}

	data, ok := out.Item[AttrData].(*types.AttributeValueMemberB)
	if !ok {
		return []byte{}, nil
	}
	return data.Value, nil
}

func (s *Storage) Update(ctx context.Context, id string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 keyOf(id),
		UpdateExpression:    aws.String("SET #d = :d, #m = :m, #s = :s"),
		ConditionExpression: existsCondition,
		ExpressionAttributeNames: map[string]string{
			"#id": AttrID,
			"#d":  AttrData,
			"#m":  AttrModified,
			"#s":  AttrSize,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberB{Value: data},
			":m": &types.AttributeValueMemberS{Value: s.timestamp()},
			":s": &types.AttributeValueMemberN{Value: strconv.Itoa(len(data))},
		},
	})
	return classify("update", id, err)
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.table),
		Key:                      keyOf(id),
		ConditionExpression:      existsCondition,
		ExpressionAttributeNames: map[string]string{"#id": AttrID},
	})
	return classify("delete", id, err)
}

func (s *Storage) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// classify maps a failed existence condition to ErrNotFound
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return storage.NotFound(id)
	}
	return storage.NewBackendError(backendName, op, id, err)
}

// TableAPI is the subset of *dynamodb.Client used by CreateTable
type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	dynamodb.DescribeTableAPIClient
}

// CreateTable creates an on-demand table with the expected key schema and
// waits until it is active. An existing table is left as is.
func CreateTable(ctx context.Context, api TableAPI, table string) error {
	_, err := api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(AttrID), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(AttrID), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("table %s not active: %w", table, err)
	}
	return nil
}

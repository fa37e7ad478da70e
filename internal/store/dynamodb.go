package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/rzpsarthak13/docbridge/internal/config"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/filter"
	"github.com/rzpsarthak13/docbridge/internal/logger"
	"github.com/rzpsarthak13/docbridge/internal/query"
)

// DynamoDBType is the type identifier of the DynamoDB transport.
const DynamoDBType = "dynamodb"

const (
	dynamoDefaultPort = 443

	// dynamoBatchSize is the BatchWriteItem request limit.
	dynamoBatchSize = 25

	dynamoTableWait     = 2 * time.Minute
	dynamoBatchAttempts = 5
)

func init() {
	RegisterFactory(&dynamoFactory{})
}

type dynamoFactory struct{}

func (f *dynamoFactory) Type() string     { return DynamoDBType }
func (f *dynamoFactory) DefaultPort() int { return dynamoDefaultPort }

func (f *dynamoFactory) Validate(cfg *config.StoreConfig) error {
	if cfg.DynamoDB.Region == "" {
		return fmt.Errorf("store.dynamodb.region is required")
	}
	if cfg.DynamoDB.CatalogTable == "" {
		return fmt.Errorf("store.dynamodb.catalog_table is required")
	}
	if (cfg.DynamoDB.AccessKeyID == "") != (cfg.DynamoDB.SecretAccessKey == "") {
		return fmt.Errorf("store.dynamodb.access_key_id and secret_access_key must be set together")
	}
	return nil
}

func (f *dynamoFactory) Create(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	return NewDynamoDBStore(ctx, cfg)
}

// dynamoItem is one stored document. The body keeps the codec's JSON form so
// nested values and times survive unchanged.
type dynamoItem struct {
	ID        string    `dynamodbav:"id"`
	Doc       []byte    `dynamodbav:"doc"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

// catalogEntry records one declared index of a collection.
type catalogEntry struct {
	Collection string    `dynamodbav:"collection"`
	Index      string    `dynamodbav:"index"`
	Fields     []string  `dynamodbav:"fields"`
	Unique     bool      `dynamodbav:"unique"`
	CreatedAt  time.Time `dynamodbav:"created_at"`
}

// dynamoAPI is the part of *dynamodb.Client the transport calls.
type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
}

// DynamoDBStore maps each collection to a table named <database>_<collection>.
// Index declarations live in a catalog table since queries scan the table.
type DynamoDBStore struct {
	client  dynamoAPI
	prefix  string
	catalog string
	log     *slog.Logger
}

// NewDynamoDBStore loads AWS config and ensures the catalog table exists.
func NewDynamoDBStore(ctx context.Context, cfg config.StoreConfig) (*DynamoDBStore, error) {
	database := cfg.Database
	if database == "" {
		database = config.DefaultDatabase
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.DynamoDB.AccessKeyID != "" && cfg.DynamoDB.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.DynamoDB.AccessKeyID, cfg.DynamoDB.SecretAccessKey, "")
	}

	var clientOptions []func(*dynamodb.Options)
	if cfg.DynamoDB.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		})
	}

	s := newDynamoDBStore(dynamodb.NewFromConfig(awsCfg, clientOptions...), database, cfg.DynamoDB.CatalogTable)
	if err := s.ensureCatalog(ctx); err != nil {
		return nil, err
	}
	s.log.Info("connected", "region", cfg.DynamoDB.Region, "prefix", s.prefix, "catalog", s.catalog)
	return s, nil
}

func newDynamoDBStore(client dynamoAPI, database, catalog string) *DynamoDBStore {
	return &DynamoDBStore{
		client:  client,
		prefix:  database + "_",
		catalog: catalog,
		log:     logger.Component("dynamodb"),
	}
}

func (s *DynamoDBStore) Type() string { return DynamoDBType }

// Close is a no-op; the SDK client holds no persistent connection.
func (s *DynamoDBStore) Close() error { return nil }

func (s *DynamoDBStore) tableName(collection string) string {
	return s.prefix + collection
}

func (s *DynamoDBStore) ensureCatalog(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.catalog)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe catalog table %s: %w", s.catalog, err)
	}

	return s.createTable(ctx, s.catalog,
		[]types.AttributeDefinition{
			{AttributeName: aws.String("collection"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("index"), AttributeType: types.ScalarAttributeTypeS},
		},
		[]types.KeySchemaElement{
			{AttributeName: aws.String("collection"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("index"), KeyType: types.KeyTypeRange},
		})
}

func (s *DynamoDBStore) createTable(ctx context.Context, name string, attrs []types.AttributeDefinition, keys []types.KeySchemaElement) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(name),
		AttributeDefinitions: attrs,
		KeySchema:            keys,
		BillingMode:          types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, dynamoTableWait); err != nil {
		return fmt.Errorf("table %s did not become active: %w", name, err)
	}
	s.log.Debug("created table", "table", name)
	return nil
}

func (s *DynamoDBStore) scanAll(ctx context.Context, collection string) ([]core.Record, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:      aws.String(s.tableName(collection)),
		ConsistentRead: aws.Bool(true),
	})

	rows := []core.Record{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var notFound *types.ResourceNotFoundException
			if errors.As(err, &notFound) {
				return []core.Record{}, nil
			}
			return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
		}

		pageRows, err := decodeDynamoItems(page.Items)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", collection, err)
		}
		rows = append(rows, pageRows...)
	}
	return rows, nil
}

// decodeDynamoItems turns scanned items back into records.
func decodeDynamoItems(items []map[string]types.AttributeValue) ([]core.Record, error) {
	var decoded []dynamoItem
	if err := attributevalue.UnmarshalListOfMaps(items, &decoded); err != nil {
		return nil, err
	}
	rows := make([]core.Record, 0, len(decoded))
	for _, item := range decoded {
		rec, err := DecodeDocument(item.Doc)
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func (s *DynamoDBStore) Find(ctx context.Context, plan *core.Plan) ([]core.Record, error) {
	rows, err := s.scanAll(ctx, plan.Collection)
	if err != nil {
		return nil, err
	}
	return query.Apply(rows, plan), nil
}

func (s *DynamoDBStore) Get(ctx context.Context, collection string, id any) (core.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName(collection)),
		Key:            dynamoKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %v from %s: %w", id, collection, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %v from %s: %w", id, collection, err)
	}
	return DecodeDocument(item.Doc)
}

func (s *DynamoDBStore) Insert(ctx context.Context, collection string, record core.Record, conflict core.ConflictPolicy) (*core.WriteResult, error) {
	doc := record.Clone()
	result := &core.WriteResult{}
	if doc.ID() == nil {
		id := uuid.NewString()
		doc[core.IDField] = id
		result.GeneratedKeys = []any{id}
	}

	if conflict != core.ConflictUpdate {
		err := s.put(ctx, collection, doc, true)
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, fmt.Errorf("%w: %v in %q", core.ErrDuplicateKey, doc.ID(), collection)
		}
		if err != nil {
			return nil, err
		}
		result.Inserted = 1
		result.Changes = []core.Change{{New: doc}}
		return result, nil
	}

	old, err := s.Get(ctx, collection, doc.ID())
	if err != nil {
		return nil, err
	}
	merged := doc
	if old != nil {
		merged = old.Clone().Merge(doc)
	}
	if err := s.put(ctx, collection, merged, false); err != nil {
		return nil, err
	}

	switch {
	case old == nil:
		result.Inserted = 1
	case sameRecord(old, merged):
		result.Unchanged = 1
	default:
		result.Replaced = 1
	}
	result.Changes = []core.Change{{Old: old, New: merged}}
	return result, nil
}

// put writes one document, creating the collection table on first use.
func (s *DynamoDBStore) put(ctx context.Context, collection string, doc core.Record, strict bool) error {
	input, err := dynamoPutInput(s.tableName(collection), doc, strict, time.Now().UTC())
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, input)
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		if err := s.CreateCollection(ctx, collection); err != nil {
			return err
		}
		_, err = s.client.PutItem(ctx, input)
	}
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return err
		}
		return fmt.Errorf("failed to put %v into %s: %w", doc.ID(), collection, err)
	}
	return nil
}

// dynamoPutInput builds the write of one document. A strict put only succeeds
// when no item has the same id.
func dynamoPutInput(table string, doc core.Record, strict bool, now time.Time) (*dynamodb.PutItemInput, error) {
	body, err := EncodeDocument(doc)
	if err != nil {
		return nil, err
	}
	item, err := attributevalue.MarshalMap(dynamoItem{
		ID:        KeyOf(doc.ID()),
		Doc:       body,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	}
	if strict {
		input.ConditionExpression = aws.String("attribute_not_exists(#id)")
		input.ExpressionAttributeNames = map[string]string{"#id": core.IDField}
	}
	return input, nil
}

func (s *DynamoDBStore) Update(ctx context.Context, collection string, pred core.Expr, fields core.Record) (*core.WriteResult, error) {
	rows, err := s.scanAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	patch := fields.Clone()
	delete(patch, core.IDField)

	result := &core.WriteResult{}
	for _, row := range rows {
		if !filter.Matches(pred, row) {
			continue
		}
		merged := row.Clone().Merge(patch)
		if sameRecord(row, merged) {
			result.Unchanged++
			continue
		}
		if err := s.put(ctx, collection, merged, false); err != nil {
			result.Errors++
			if result.FirstError == "" {
				result.FirstError = err.Error()
			}
			continue
		}
		result.Replaced++
	}
	return result, nil
}

func (s *DynamoDBStore) Delete(ctx context.Context, collection string, pred core.Expr) (*core.WriteResult, error) {
	rows, err := s.scanAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	var ids []any
	for _, row := range rows {
		if filter.Matches(pred, row) {
			ids = append(ids, row.ID())
		}
	}

	result := &core.WriteResult{}
	table := s.tableName(collection)
	for _, batch := range dynamoDeleteBatches(ids) {
		pending := map[string][]types.WriteRequest{table: batch}

		for attempt := 0; len(pending[table]) > 0; attempt++ {
			if attempt == dynamoBatchAttempts {
				result.Errors += int64(len(pending[table]))
				if result.FirstError == "" {
					result.FirstError = "unprocessed delete requests after retries"
				}
				break
			}
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return nil, fmt.Errorf("failed to delete from %s: %w", collection, err)
			}
			result.Deleted += int64(len(pending[table]) - len(out.UnprocessedItems[table]))
			pending = out.UnprocessedItems
		}
	}
	return result, nil
}

// dynamoDeleteBatches splits delete requests into BatchWriteItem-sized groups.
func dynamoDeleteBatches(ids []any) [][]types.WriteRequest {
	var batches [][]types.WriteRequest
	for start := 0; start < len(ids); start += dynamoBatchSize {
		end := min(start+dynamoBatchSize, len(ids))
		batch := make([]types.WriteRequest, 0, end-start)
		for _, id := range ids[start:end] {
			batch = append(batch, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: dynamoKey(id)},
			})
		}
		batches = append(batches, batch)
	}
	return batches
}

func (s *DynamoDBStore) Count(ctx context.Context, collection string, pred core.Expr) (int64, error) {
	rows, err := s.scanAll(ctx, collection)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, row := range rows {
		if filter.Matches(pred, row) {
			n++
		}
	}
	return n, nil
}

func (s *DynamoDBStore) ListCollections(ctx context.Context) ([]string, error) {
	paginator := dynamodb.NewListTablesPaginator(s.client, &dynamodb.ListTablesInput{})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		names = append(names, collectionTables(page.TableNames, s.prefix, s.catalog)...)
	}
	sort.Strings(names)
	return names, nil
}

// collectionTables keeps the tables owned by this database and strips their prefix.
func collectionTables(tables []string, prefix, catalog string) []string {
	var names []string
	for _, table := range tables {
		if table == catalog || !strings.HasPrefix(table, prefix) {
			continue
		}
		names = append(names, strings.TrimPrefix(table, prefix))
	}
	return names
}

func (s *DynamoDBStore) CreateCollection(ctx context.Context, name string) error {
	return s.createTable(ctx, s.tableName(name),
		[]types.AttributeDefinition{
			{AttributeName: aws.String(core.IDField), AttributeType: types.ScalarAttributeTypeS},
		},
		[]types.KeySchemaElement{
			{AttributeName: aws.String(core.IDField), KeyType: types.KeyTypeHash},
		})
}

func (s *DynamoDBStore) ListIndexes(ctx context.Context, collection string) ([]string, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                aws.String(s.catalog),
		KeyConditionExpression:   aws.String("#c = :c"),
		ExpressionAttributeNames: map[string]string{"#c": "collection"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: collection},
		},
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list indexes of %s: %w", collection, err)
		}
		var entries []catalogEntry
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &entries); err != nil {
			return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
		}
		for _, e := range entries {
			names = append(names, e.Index)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *DynamoDBStore) CreateIndex(ctx context.Context, collection string, spec core.IndexSpec) error {
	input, err := catalogPutInput(s.catalog, collection, spec, time.Now().UTC())
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("index %q already exists on %q", spec.Name, collection)
		}
		return fmt.Errorf("failed to record index %s on %s: %w", spec.Name, collection, err)
	}
	return nil
}

// catalogPutInput records an index declaration unless one with the same name exists.
func catalogPutInput(catalog, collection string, spec core.IndexSpec, now time.Time) (*dynamodb.PutItemInput, error) {
	item, err := attributevalue.MarshalMap(catalogEntry{
		Collection: collection,
		Index:      spec.Name,
		Fields:     spec.Fields,
		Unique:     spec.Unique,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog entry: %w", err)
	}
	return &dynamodb.PutItemInput{
		TableName:                aws.String(catalog),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#i)"),
		ExpressionAttributeNames: map[string]string{"#i": "index"},
	}, nil
}

func dynamoKey(id any) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		core.IDField: &types.AttributeValueMemberS{Value: KeyOf(id)},
	}
}

// Пакет resultstore — хранение результатов обработки документов в DynamoDB.
//
// Ключ таблицы — document_id. Для выборки по владельцу используется GSI по
// owner_user_name; без владельца выполняется Scan. Элемент — результат,
// закодированный attributevalue по json-тегам модели.
package resultstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// ErrNotFound — результат не найден.
var ErrNotFound = errors.New("результат обработки не найден")

// Атрибуты элемента таблицы, используемые в ключах и выражениях.
const (
	attrDocumentID = "document_id"
	attrOwner      = "owner_user_name"
)

// DynamoAPI — используемое подмножество *dynamodb.Client.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store — таблица результатов обработки.
type Store struct {
	api        DynamoAPI
	table      string
	ownerIndex string
	logger     *slog.Logger
}

// New создаёт хранилище результатов.
func New(api DynamoAPI, table, ownerIndex string, logger *slog.Logger) *Store {
	return &Store{
		api:        api,
		table:      table,
		ownerIndex: ownerIndex,
		logger:     logger.With(slog.String("component", "resultstore")),
	}
}

func jsonTags(o *attributevalue.EncoderOptions)   { o.TagKey = "json" }
func jsonTagsIn(o *attributevalue.DecoderOptions) { o.TagKey = "json" }

// toItem кодирует результат в элемент таблицы.
func toItem(r *model.ProcessedResult) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMapWithOptions(r, jsonTags)
	if err != nil {
		return nil, fmt.Errorf("кодирование результата %s: %w", r.DocumentID, err)
	}
	// Пустая строка недопустима в ключе GSI: такой элемент просто не попадает в индекс
	if r.OwnerUserName == "" {
		delete(item, attrOwner)
	}
	return item, nil
}

// fromItem декодирует элемент таблицы.
func fromItem(item map[string]types.AttributeValue) (*model.ProcessedResult, error) {
	r := &model.ProcessedResult{}
	if err := attributevalue.UnmarshalMapWithOptions(item, r, jsonTagsIn); err != nil {
		return nil, fmt.Errorf("декодирование результата: %w", err)
	}
	return r, nil
}

func documentKey(documentID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrDocumentID: &types.AttributeValueMemberS{Value: documentID},
	}
}

// Put сохраняет результат (создание или полная замена).
func (s *Store) Put(ctx context.Context, r *model.ProcessedResult) error {
	item, err := toItem(r)
	if err != nil {
		return err
	}
	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("сохранение результата %s: %w", r.DocumentID, err)
	}
	return nil
}

// Replace заменяет существующий результат. Отсутствие — ErrNotFound.
func (s *Store) Replace(ctx context.Context, r *model.ProcessedResult) error {
	item, err := toItem(r)
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(" + attrDocumentID + ")"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("обновление результата %s: %w", r.DocumentID, err)
	}
	return nil
}

// Get возвращает результат по ID.
func (s *Store) Get(ctx context.Context, documentID string) (*model.ProcessedResult, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            documentKey(documentID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("получение результата %s: %w", documentID, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return fromItem(out.Item)
}

// Delete удаляет результат и возвращает удалённую запись.
func (s *Store) Delete(ctx context.Context, documentID string) (*model.ProcessedResult, error) {
	out, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.table),
		Key:          documentKey(documentID),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("удаление результата %s: %w", documentID, err)
	}
	if len(out.Attributes) == 0 {
		return nil, ErrNotFound
	}
	return fromItem(out.Attributes)
}

// List возвращает до limit результатов, новые первыми. owner == "" — все
// владельцы. Чтение страниц прекращается, как только набрано limit элементов,
// поэтому порядок гарантируется только внутри прочитанных страниц.
func (s *Store) List(ctx context.Context, owner string, limit int) ([]*model.ProcessedResult, error) {
	var (
		items []map[string]types.AttributeValue
		err   error
	)
	if owner != "" {
		items, err = s.queryOwner(ctx, owner, limit)
	} else {
		items, err = s.scan(ctx, limit)
	}
	if err != nil {
		return nil, err
	}

	result := make([]*model.ProcessedResult, 0, len(items))
	for _, item := range items {
		r, err := fromItem(item)
		if err != nil {
			s.logger.Warn("Пропущен повреждённый элемент", slog.String("error", err.Error()))
			continue
		}
		result = append(result, r)
	}

	slices.SortFunc(result, func(a, b *model.ProcessedResult) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// pageLimit — размер страницы; nil — по умолчанию DynamoDB (до 1 МБ).
func pageLimit(limit int) *int32 {
	if limit <= 0 {
		return nil
	}
	return aws.Int32(int32(min(limit, 1000)))
}

func enough(items []map[string]types.AttributeValue, limit int) bool {
	return limit > 0 && len(items) >= limit
}

func (s *Store) queryOwner(ctx context.Context, owner string, limit int) ([]map[string]types.AttributeValue, error) {
	pages := dynamodb.NewQueryPaginator(s.api, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(s.ownerIndex),
		KeyConditionExpression: aws.String(attrOwner + " = :owner"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
		Limit: pageLimit(limit),
	})

	var items []map[string]types.AttributeValue
	for pages.HasMorePages() && !enough(items, limit) {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("выборка результатов владельца %s: %w", owner, err)
		}
		items = append(items, out.Items...)
	}
	return items, nil
}

func (s *Store) scan(ctx context.Context, limit int) ([]map[string]types.AttributeValue, error) {
	pages := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
		Limit:     pageLimit(limit),
	})

	var items []map[string]types.AttributeValue
	for pages.HasMorePages() && !enough(items, limit) {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("сканирование результатов: %w", err)
		}
		items = append(items, out.Items...)
	}
	return items, nil
}

// CheckReady проверяет доступность таблицы (ReadinessChecker).
func (s *Store) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := s.api.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
		Limit:     aws.Int32(1),
	}); err != nil {
		return "fail", "DynamoDB недоступна: " + err.Error()
	}
	return "ok", "DynamoDB доступна"
}

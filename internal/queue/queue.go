// Пакет queue — очередь SQS задач обработки документов: публикация
// пакетами и long-polling поллер для запуска конвейера без Lambda.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// maxBatch — максимум сообщений в одном SendMessageBatch.
const maxBatch = 10

// Атрибуты сообщения.
const (
	AttrProcessingType = "processing_type"
	AttrOwnerUserName  = "owner_user_name"
)

// SQSAPI — используемое подмножество *sqs.Client.
type SQSAPI interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Publisher публикует задачи обработки.
type Publisher struct {
	api      SQSAPI
	queueURL string
	logger   *slog.Logger
}

// NewPublisher создаёт публикатора задач.
func NewPublisher(api SQSAPI, queueURL string, logger *slog.Logger) *Publisher {
	return &Publisher{
		api:      api,
		queueURL: queueURL,
		logger:   logger.With(slog.String("component", "queue_publisher")),
	}
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

// Publish отправляет задачи пакетами по 10. Возвращает ID документов,
// задачи которых не удалось поставить в очередь, с причиной.
func (p *Publisher) Publish(ctx context.Context, tasks []model.ProcessingTask) map[string]error {
	failed := make(map[string]error)

	for start := 0; start < len(tasks); start += maxBatch {
		batch := tasks[start:min(start+maxBatch, len(tasks))]

		entries := make([]types.SendMessageBatchRequestEntry, 0, len(batch))
		byEntry := make(map[string]string, len(batch))
		for i, task := range batch {
			body, err := json.Marshal(task)
			if err != nil {
				failed[task.DocumentID] = fmt.Errorf("кодирование задачи: %w", err)
				continue
			}
			id := strconv.Itoa(start + i)
			byEntry[id] = task.DocumentID

			processingType := task.ProcessingType
			if processingType == "" {
				processingType = "default"
			}
			owner := task.OwnerUserName
			if owner == "" {
				owner = "unknown"
			}
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(id),
				MessageBody: aws.String(string(body)),
				MessageAttributes: map[string]types.MessageAttributeValue{
					AttrProcessingType: stringAttr(processingType),
					AttrOwnerUserName:  stringAttr(owner),
				},
			})
		}
		if len(entries) == 0 {
			continue
		}

		out, err := p.api.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(p.queueURL),
			Entries:  entries,
		})
		if err != nil {
			for _, docID := range byEntry {
				failed[docID] = fmt.Errorf("SendMessageBatch: %w", err)
			}
			p.logger.Error("Ошибка отправки пакета в SQS",
				slog.Int("messages", len(entries)), slog.String("error", err.Error()))
			continue
		}
		for _, f := range out.Failed {
			docID := byEntry[aws.ToString(f.Id)]
			failed[docID] = fmt.Errorf("SQS %s: %s", aws.ToString(f.Code), aws.ToString(f.Message))
		}
		p.logger.Info("Задачи отправлены в SQS",
			slog.Int("successful", len(out.Successful)),
			slog.Int("failed", len(out.Failed)),
		)
	}
	return failed
}

// DecodeTask разбирает тело сообщения очереди.
func DecodeTask(body string) (*model.ProcessingTask, error) {
	var task model.ProcessingTask
	if err := json.Unmarshal([]byte(body), &task); err != nil {
		return nil, fmt.Errorf("разбор сообщения: %w", err)
	}
	if task.DocumentID == "" {
		return nil, fmt.Errorf("разбор сообщения: отсутствует document_id")
	}
	return &task, nil
}

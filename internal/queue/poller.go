package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Handler обрабатывает тело сообщения. Ошибка оставляет сообщение в
// очереди до истечения visibility timeout.
type Handler func(ctx context.Context, body string) error

// receiveErrorBackoff — пауза после ошибки ReceiveMessage.
var receiveErrorBackoff = 5 * time.Second

// Poller — long-polling чтение очереди несколькими горутинами.
type Poller struct {
	api         SQSAPI
	queueURL    string
	waitTime    time.Duration
	concurrency int
	handler     Handler
	logger      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller создаёт поллер очереди.
func NewPoller(api SQSAPI, queueURL string, waitTime time.Duration, concurrency int, handler Handler, logger *slog.Logger) *Poller {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Poller{
		api:         api,
		queueURL:    queueURL,
		waitTime:    waitTime,
		concurrency: concurrency,
		handler:     handler,
		logger:      logger.With(slog.String("component", "queue_poller")),
	}
}

// Start запускает горутины чтения очереди.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Info("Поллер SQS запущен",
		slog.Int("concurrency", p.concurrency),
		slog.String("wait_time", p.waitTime.String()),
	)
	for range p.concurrency {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(ctx)
		}()
	}
}

// Stop останавливает поллер и ждёт завершения обработки текущих сообщений.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Поллер SQS остановлен")
}

func (p *Poller) loop(ctx context.Context) {
	for ctx.Err() == nil {
		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("Ошибка чтения SQS", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveErrorBackoff):
			}
		}
	}
}

// PollOnce читает одну порцию сообщений и обрабатывает их последовательно.
// Успешно обработанные сообщения удаляются из очереди.
func (p *Poller) PollOnce(ctx context.Context) error {
	out, err := p.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(p.queueURL),
		MaxNumberOfMessages:   maxBatch,
		WaitTimeSeconds:       int32(p.waitTime / time.Second),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return err
	}

	for _, msg := range out.Messages {
		// Обработка не прерывается при остановке поллера
		handleCtx := context.WithoutCancel(ctx)
		if err := p.handler(handleCtx, aws.ToString(msg.Body)); err != nil {
			p.logger.Warn("Сообщение не обработано, будет повторено",
				slog.String("message_id", aws.ToString(msg.MessageId)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, err := p.api.DeleteMessage(handleCtx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(p.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			p.logger.Error("Ошибка удаления сообщения",
				slog.String("message_id", aws.ToString(msg.MessageId)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

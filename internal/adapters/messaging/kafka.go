package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
)

// KafkaMessaging реализация MessagingPort с использованием Kafka
type KafkaMessaging struct {
	producer      *kafka.Producer
	subscriptions map[string]func() error
	subsMutex     sync.Mutex
	brokers       string
	groupID       string
	logger        interfaces.LoggerPort
	done          chan struct{}
}

// NewKafkaMessaging создает новый экземпляр KafkaMessaging
func NewKafkaMessaging(brokers []string, groupID string, logger interfaces.LoggerPort) (*KafkaMessaging, error) {
	servers := strings.Join(brokers, ",")
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":            servers,
		"client.id":                    "catalog-sync-producer",
		"acks":                         "all", // максимальная надежность
		"retries":                      5,
		"retry.backoff.ms":             500,
		"compression.type":             "snappy",
		"linger.ms":                    10,    // небольшая задержка для батчинга
		"batch.size":                   16384, // размер пакета в байтах
		"message.max.bytes":            1000000,
		"queue.buffering.max.messages": 100000, // размер внутреннего буфера
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka producer: %w", err)
	}

	k := &KafkaMessaging{
		producer:      producer,
		subscriptions: make(map[string]func() error),
		brokers:       servers,
		groupID:       groupID,
		logger:        logger,
		done:          make(chan struct{}),
	}
	go k.watchDeliveries()

	return k, nil
}

// messageToKafkaMessage преобразует сообщение в kafka.Message
func messageToKafkaMessage(topic string, message []byte, key string, headers map[string]string) *kafka.Message {
	kafkaHeaders := make([]kafka.Header, 0, len(headers)+2)
	for k, v := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{
			Key:   k,
			Value: []byte(v),
		})
	}

	// Служебные заголовки
	kafkaHeaders = append(kafkaHeaders,
		kafka.Header{Key: "message_id", Value: []byte(uuid.New().String())},
		kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339Nano))},
	)

	var keyBytes []byte
	if key != "" {
		keyBytes = []byte(key)
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          message,
		Key:            keyBytes,
		Headers:        kafkaHeaders,
	}
}

// kafkaMessageToMessage преобразует kafka.Message в Message
func kafkaMessageToMessage(msg *kafka.Message) *interfaces.Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, header := range msg.Headers {
		headers[header.Key] = string(header.Value)
	}

	var key string
	if msg.Key != nil {
		key = string(msg.Key)
	}

	var topic string
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}

	publishedAt := msg.Timestamp
	if tsStr, ok := headers["timestamp"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, tsStr); err == nil {
			publishedAt = ts
		}
	}

	return &interfaces.Message{
		ID:          headers["message_id"],
		Topic:       topic,
		Key:         key,
		Value:       msg.Value,
		Headers:     headers,
		PublishedAt: publishedAt,
	}
}

// Publish публикует сообщение в указанную тему. Доставка асинхронная:
// ошибки доставки логируются в watchDeliveries.
func (k *KafkaMessaging) Publish(ctx context.Context, topic string, key string, message []byte) error {
	headers := map[string]string{}
	if requestID, ok := ctx.Value(interfaces.RequestIDKey).(string); ok && requestID != "" {
		headers["request_id"] = requestID
	}

	msg := messageToKafkaMessage(topic, message, key, headers)
	if err := k.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("ошибка публикации в топик %s: %w", topic, err)
	}
	return nil
}

// watchDeliveries читает отчеты о доставке, иначе очередь событий producer переполнится
func (k *KafkaMessaging) watchDeliveries() {
	for {
		select {
		case <-k.done:
			return
		case ev, ok := <-k.producer.Events():
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *kafka.Message:
				if e.TopicPartition.Error != nil {
					k.logger.Error("Ошибка доставки сообщения Kafka",
						interfaces.LogField{Key: "topic", Value: *e.TopicPartition.Topic},
						interfaces.LogField{Key: "key", Value: string(e.Key)},
						interfaces.LogField{Key: "error", Value: e.TopicPartition.Error.Error()},
					)
				}
			case kafka.Error:
				k.logger.Warn("Ошибка Kafka producer",
					interfaces.LogField{Key: "error", Value: e.Error()},
				)
			}
		}
	}
}

// Subscribe подписывается на указанную тему и обрабатывает сообщения с помощью handler.
// Смещение подтверждается после вызова handler, даже если он вернул ошибку.
func (k *KafkaMessaging) Subscribe(ctx context.Context, topic string, handler interfaces.MessageHandler) (func() error, error) {
	config := &interfaces.ConsumerConfig{
		GroupID:     k.groupID,
		AutoCommit:  false,
		PollTimeout: 100 * time.Millisecond,
	}
	return k.subscribeWithConfig(ctx, topic, handler, config)
}

func (k *KafkaMessaging) subscribeWithConfig(ctx context.Context, topic string, handler interfaces.MessageHandler, config *interfaces.ConsumerConfig) (func() error, error) {
	consumerID := uuid.New().String()

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":        k.brokers,
		"group.id":                 config.GroupID,
		"auto.offset.reset":        "earliest",
		"enable.auto.commit":       config.AutoCommit,
		"session.timeout.ms":       30000,
		"max.poll.interval.ms":     600000,
		"heartbeat.interval.ms":    3000,
		"fetch.min.bytes":          1,
		"fetch.wait.max.ms":        500,
		"reconnect.backoff.ms":     50,
		"reconnect.backoff.max.ms": 10000,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka consumer: %w", err)
	}

	if err := consumer.Subscribe(topic, nil); err != nil {
		consumer.Close()
		return nil, fmt.Errorf("ошибка подписки на топик %s: %w", topic, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		k.consumeMessages(consumeCtx, consumer, handler, config)
	}()

	var once sync.Once
	unsubscribe := func() error {
		var closeErr error
		once.Do(func() {
			cancel()
			<-stopped

			k.subsMutex.Lock()
			delete(k.subscriptions, consumerID)
			k.subsMutex.Unlock()

			closeErr = consumer.Close()
		})
		return closeErr
	}

	k.subsMutex.Lock()
	k.subscriptions[consumerID] = unsubscribe
	k.subsMutex.Unlock()

	return unsubscribe, nil
}

// consumeMessages обрабатывает сообщения из Kafka до отмены контекста
func (k *KafkaMessaging) consumeMessages(ctx context.Context, consumer *kafka.Consumer, handler interfaces.MessageHandler, config *interfaces.ConsumerConfig) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := consumer.Poll(int(config.PollTimeout.Milliseconds()))
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			msg := kafkaMessageToMessage(e)
			msgCtx := ctx
			if requestID := msg.Headers["request_id"]; requestID != "" {
				msgCtx = context.WithValue(ctx, interfaces.RequestIDKey, requestID)
			}

			if err := handler(msgCtx, msg); err != nil {
				k.logger.ErrorWithContext(msgCtx, "Ошибка обработки сообщения",
					interfaces.LogField{Key: "topic", Value: msg.Topic},
					interfaces.LogField{Key: "key", Value: msg.Key},
					interfaces.LogField{Key: "offset", Value: e.TopicPartition.Offset.String()},
					interfaces.LogField{Key: "error", Value: err.Error()},
				)
			}

			// Сообщение с ошибкой тоже подтверждается: повтор дал бы тот же результат,
			// а ошибки отдельных товаров уже попали в события и лог
			if !config.AutoCommit {
				if _, err := consumer.CommitMessage(e); err != nil {
					k.logger.Warn("Не удалось подтвердить смещение",
						interfaces.LogField{Key: "topic", Value: msg.Topic},
						interfaces.LogField{Key: "error", Value: err.Error()},
					)
				}
			}

		case kafka.Error:
			k.logger.Warn("Ошибка Kafka consumer",
				interfaces.LogField{Key: "code", Value: e.Code().String()},
				interfaces.LogField{Key: "error", Value: e.Error()},
			)
			if e.Code() == kafka.ErrAllBrokersDown {
				return
			}

		case kafka.PartitionEOF:
			k.logger.Debug("Достигнут конец партиции",
				interfaces.LogField{Key: "partition", Value: e.String()},
			)
		}
	}
}

// CreateTopic создает тему, если ее еще нет
func (k *KafkaMessaging) CreateTopic(ctx context.Context, topic string, partitions int, replicationFactor int) error {
	adminClient, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("ошибка создания Kafka admin client: %w", err)
	}
	defer adminClient.Close()

	result, err := adminClient.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	}}, kafka.SetAdminOperationTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("ошибка создания топика %s: %w", topic, err)
	}

	for _, r := range result {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("ошибка создания топика %s: %s", r.Topic, r.Error.String())
		}
	}

	return nil
}

// Close закрывает соединение с системой обмена сообщениями
func (k *KafkaMessaging) Close() error {
	k.subsMutex.Lock()
	unsubscribes := make([]func() error, 0, len(k.subscriptions))
	for _, unsubscribe := range k.subscriptions {
		unsubscribes = append(unsubscribes, unsubscribe)
	}
	k.subsMutex.Unlock()

	for _, unsubscribe := range unsubscribes {
		if err := unsubscribe(); err != nil {
			k.logger.Warn("Ошибка закрытия Kafka consumer",
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
	}

	// Ждем до 15 секунд для отправки всех сообщений
	if remaining := k.producer.Flush(15 * 1000); remaining > 0 {
		k.logger.Warn("Не все сообщения Kafka доставлены при закрытии",
			interfaces.LogField{Key: "remaining", Value: remaining},
		)
	}
	close(k.done)
	k.producer.Close()

	return nil
}

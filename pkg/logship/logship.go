// Package logship ships persisted request logs through Kafka and indexes them
// into Elasticsearch on the consumer side.
package logship

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/no-abramov/todoapi/pkg/storage"
)

// Message is the JSON payload written to the topic.
type Message struct {
	storage.RequestLog
	Service   string `json:"service"`
	RequestID string `json:"requestId"`
}

// DocumentID makes re-delivered messages overwrite the same document.
func (m Message) DocumentID() string {
	return m.Service + "-" + strconv.FormatInt(m.ID, 10)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewWriter(brokers []string, topic string, batchSize int) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		BatchSize:              batchSize,
		AllowAutoTopicCreation: true,
	}
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
}

func CreateTopic(ctx context.Context, broker, topic string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}

package logship

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/no-abramov/todoapi/pkg/storage"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Publisher sends request logs to Kafka from a background goroutine. Publish
// never blocks the caller; entries are dropped when the queue is full.
type Publisher struct {
	service string
	w       MessageWriter
	queue   chan Message
	wg      sync.WaitGroup
	once    sync.Once
}

func NewPublisher(service string, w MessageWriter, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	p := Publisher{
		service: service,
		w:       w,
		queue:   make(chan Message, queueSize),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run()
	}()

	return &p
}

func (p *Publisher) Publish(entry storage.RequestLog, reqID string) {
	msg := Message{RequestLog: entry, Service: p.service, RequestID: reqID}

	select {
	case p.queue <- msg:
	default:
		log.Warnf("[logship] queue full, dropping request log %d", entry.ID)
	}
}

func (p *Publisher) run() {
	for msg := range p.queue {
		value, err := json.Marshal(msg)
		if err != nil {
			log.Errorf("[logship] failed to marshal request log %d: %v", msg.ID, err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = p.w.WriteMessages(ctx, kafka.Message{Key: []byte(msg.DocumentID()), Value: value})
		cancel()
		if err != nil {
			log.Errorf("[logship] failed to write log to Kafka: %v", err)
			continue
		}
		log.Debugf("[logship] request log %d sent to Kafka", msg.ID)
	}
}

// Close flushes queued entries and closes the writer.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.queue)
		p.wg.Wait()
		err = p.w.Close()
	})
	return err
}

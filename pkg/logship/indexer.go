package logship

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

type Indexer struct {
	es    *elasticsearch.Client
	index string
}

func NewIndexer(es *elasticsearch.Client, index string) *Indexer {
	return &Indexer{es: es, index: index}
}

// Index stores one Kafka message value as a document.
func (ix *Indexer) Index(ctx context.Context, value []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return Message{}, fmt.Errorf("unmarshal log entry: %w", err)
	}

	res, err := ix.es.Index(
		ix.index,
		bytes.NewReader(value),
		ix.es.Index.WithDocumentID(msg.DocumentID()),
		ix.es.Index.WithContext(ctx),
	)
	if err != nil {
		return msg, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return msg, fmt.Errorf("index document %s: %s", msg.DocumentID(), res.Status())
	}

	return msg, nil
}

// Run reads messages until ctx is cancelled and indexes them with numWorkers workers.
func (ix *Indexer) Run(ctx context.Context, r MessageReader, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}

	jobs := make(chan kafka.Message, numWorkers*5)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for workerID := 0; workerID < numWorkers; workerID++ {
		go func(id int) {
			defer wg.Done()
			ix.worker(ctx, jobs, id)
		}(workerID)
	}

	log.Info("[logkeeper] accepting logs...")
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			log.Errorf("[logkeeper] failed to read message from Kafka: %v", err)
			continue
		}
		log.Debugf("[logkeeper] received message: %s", string(msg.Value))

		select {
		case jobs <- msg:
		case <-ctx.Done():
		}
	}

	close(jobs)
	wg.Wait()
}

func (ix *Indexer) worker(ctx context.Context, jobs <-chan kafka.Message, workerID int) {
	for {
		select {
		case <-ctx.Done():
			log.Infof("[logkeeper][workerID:%d] context cancelled, exiting worker", workerID)
			return

		case msg, ok := <-jobs:
			if !ok {
				log.Infof("[logkeeper][workerID:%d] jobs channel closed, exiting worker", workerID)
				return
			}

			entry, err := ix.Index(ctx, msg.Value)
			if err != nil {
				log.Errorf("[logkeeper][workerID:%d] failed to index document: %v", workerID, err)
				continue
			}
			log.Infof("[logkeeper][workerID:%d][%s] log entry indexed", workerID, entry.DocumentID())
		}
	}
}

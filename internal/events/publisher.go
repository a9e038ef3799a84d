// Package events publishes sync run events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/JonMunkholm/repsync/internal/core"
)

// EventRunFinished is the event type emitted after every sync or restore.
const EventRunFinished = "sync.run.finished"

// RunFinishedEvent is the message contract. Consumers key on
// OrganizationCode; Run carries the full report.
type RunFinishedEvent struct {
	EventType        string         `json:"eventType"`
	EventID          string         `json:"eventId"`
	EventTime        time.Time      `json:"eventTime"`
	SchemaVersion    string         `json:"schemaVersion"`
	OrganizationCode string         `json:"organizationCode"`
	Status           core.RunStatus `json:"status"`
	Totals           core.FileStats `json:"totals"`
	Run              *core.SyncRun  `json:"run"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a core.RunPublisher writing to one Kafka topic.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

var _ core.RunPublisher = (*Publisher)(nil)

// NewPublisher creates a writer for topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	})
}

func newPublisher(w messageWriter) *Publisher {
	return &Publisher{writer: w, now: time.Now}
}

// PublishRun sends a RunFinishedEvent keyed by organization code, so every
// event of one organization lands on the same partition in order.
func (p *Publisher) PublishRun(ctx context.Context, run *core.SyncRun) error {
	event := RunFinishedEvent{
		EventType:        EventRunFinished,
		EventID:          uuid.NewString(),
		EventTime:        p.now().UTC(),
		SchemaVersion:    "v1",
		OrganizationCode: run.OrganizationCode,
		Status:           run.Status,
		Totals:           run.Totals(),
		Run:              run,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(run.OrganizationCode),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventRunFinished)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish run %s: %w", run.ID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

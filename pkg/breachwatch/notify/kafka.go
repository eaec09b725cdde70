// Package notify publishes ingestion events to Kafka so downstream consumers
// learn about new and changed incidents without polling the catalog.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/cognicore/breachwatch/pkg/breachwatch/ingest"
	"github.com/cognicore/breachwatch/pkg/breachwatch/store"
)

// Header names set on every message.
const (
	HeaderOutcome  = "outcome"
	HeaderSourceID = "source-id"
	HeaderRunID    = "run-id"
)

// ErrPublisherClosed is returned by Notify after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// Config configures a Kafka publisher.
type Config struct {
	Brokers      []string
	Topic        string
	Compression  string // gzip, snappy, lz4, zstd; default snappy
	Acks         string // all (default), leader, none
	BatchTimeout time.Duration
	MaxAttempts  int
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the JSON body of one event.
type Message struct {
	EventID            string    `json:"event_id"`
	RunID              string    `json:"run_id"`
	Outcome            string    `json:"outcome"`
	IncidentUID        string    `json:"incident_uid"`
	IdentityKind       string    `json:"identity_kind"`
	SourceID           int       `json:"source_id"`
	OriginURL          string    `json:"origin_url,omitempty"`
	OrganizationName   string    `json:"organization_name"`
	BreachDate         string    `json:"breach_date,omitempty"`
	ReportedDate       string    `json:"reported_date,omitempty"`
	Affected           *int64    `json:"affected_individuals,omitempty"`
	AffectedConfidence string    `json:"affected_confidence,omitempty"`
	DataTypes          []string  `json:"data_types_compromised"`
	TaxonomyVersion    string    `json:"taxonomy_version"`
	Changed            []string  `json:"changed,omitempty"`
	EmittedAt          time.Time `json:"emitted_at"`
}

var _ ingest.Notifier = (*Publisher)(nil)

// Publisher implements ingest.Notifier on a Kafka topic. Messages are keyed by
// incident UID so all events of one incident land on the same partition.
type Publisher struct {
	writer messageWriter
	ids    *store.IDs
	now    func() time.Time
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates a publisher writing to cfg.Topic.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var codec compress.Compression
	switch cfg.Compression {
	case "gzip":
		codec = compress.Gzip
	case "lz4":
		codec = compress.Lz4
	case "zstd":
		codec = compress.Zstd
	default:
		codec = compress.Snappy
	}

	acks := kafka.RequireAll
	switch cfg.Acks {
	case "none":
		acks = kafka.RequireNone
	case "leader":
		acks = kafka.RequireOne
	}

	errorLog := kafka.LoggerFunc(func(msg string, args ...any) {
		logger.Error(fmt.Sprintf(msg, args...), "component", "kafka")
	})
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: acks,
		Compression:  codec,
		MaxAttempts:  cfg.MaxAttempts,
		BatchTimeout: cfg.BatchTimeout,
		Logger:       kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger:  errorLog,
	}
	return newPublisher(w, logger), nil
}

func newPublisher(w messageWriter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{writer: w, ids: store.NewIDs(), now: time.Now, logger: logger}
}

// Notify publishes e.
func (p *Publisher) Notify(ctx context.Context, e ingest.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	if e.Record.IncidentUID == "" {
		return fmt.Errorf("event without incident uid")
	}

	now := p.now().UTC()
	body, err := json.Marshal(newMessage(p.ids.New(now), now, e))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.Record.IncidentUID),
		Value: body,
		Time:  now,
		Headers: []kafka.Header{
			{Key: HeaderOutcome, Value: []byte(e.Outcome)},
			{Key: HeaderSourceID, Value: []byte(strconv.Itoa(e.Record.SourceID))},
			{Key: HeaderRunID, Value: []byte(e.RunID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Record.IncidentUID, err)
	}
	p.logger.Debug("event published", "uid", e.Record.IncidentUID, "outcome", e.Outcome)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

func newMessage(id string, now time.Time, e ingest.Event) Message {
	r := e.Record
	return Message{
		EventID:            id,
		RunID:              e.RunID,
		Outcome:            string(e.Outcome),
		IncidentUID:        r.IncidentUID,
		IdentityKind:       string(r.IdentityKind),
		SourceID:           r.SourceID,
		OriginURL:          r.OriginURL,
		OrganizationName:   r.OrganizationName,
		BreachDate:         r.BreachDate.ISO(),
		ReportedDate:       r.ReportedDate.ISO(),
		Affected:           r.AffectedIndividuals,
		AffectedConfidence: string(r.AffectedConfidence),
		DataTypes:          r.DataTypes,
		TaxonomyVersion:    r.TaxonomyVersion,
		Changed:            e.Changed,
		EmittedAt:          now,
	}
}

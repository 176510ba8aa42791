// Package jobevents publishes print job lifecycle events to Kafka.
package jobevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/mfp-encoder/internal/core/observability"
)

const (
	KindSubmitted = "submitted"
	KindFinished  = "finished"
	KindFailed    = "failed"
	KindCancelled = "cancelled"
)

type Event struct {
	Kind      string    `json:"kind"`
	Ref       string    `json:"ref"`
	Layout    string    `json:"layout,omitempty"`
	Format    string    `json:"format,omitempty"`
	State     string    `json:"state,omitempty"`
	Error     string    `json:"error,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	TS        time.Time `json:"ts"`
}

// Publisher never blocks the request path.
type Publisher interface {
	Publish(ev Event)
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Close() error  { return nil }

// Kafka queues events and hands them to an async producer. When the queue
// is full events are dropped and counted.
type Kafka struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	log     *slog.Logger
	closeMu sync.Mutex
	closed  bool
	stopped chan struct{}
	drained chan struct{}
}

var _ Publisher = (*Kafka)(nil)

func NewKafka(brokers []string, topic string, queueSize int, log *slog.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("jobevents: no brokers configured")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("jobevents: create async producer: %w", err)
	}
	return newKafka(prod, topic, queueSize, log), nil
}

func newKafka(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Kafka {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Kafka{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		log:     log.With("component", "jobevents"),
		stopped: make(chan struct{}),
		drained: make(chan struct{}),
	}
	go p.pump()
	go p.watchErrors()
	return p
}

func (p *Kafka) pump() {
	defer close(p.stopped)
	for ev := range p.events {
		b, err := json.Marshal(ev)
		if err != nil {
			p.log.Warn("marshal job event", "err", err, "ref", ev.Ref)
			observability.IncJobEvent(ev.Kind, err)
			continue
		}
		p.prod.Input() <- &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(ev.Ref),
			Value: sarama.ByteEncoder(b),
		}
		observability.IncJobEvent(ev.Kind, nil)
	}
}

func (p *Kafka) watchErrors() {
	defer close(p.drained)
	for perr := range p.prod.Errors() {
		if perr == nil {
			continue
		}
		kind := "unknown"
		if perr.Msg != nil && perr.Msg.Value != nil {
			var ev Event
			if b, err := perr.Msg.Value.Encode(); err == nil && json.Unmarshal(b, &ev) == nil {
				kind = ev.Kind
			}
		}
		observability.IncJobEvent(kind, perr.Err)
		p.log.Warn("job event not delivered", "err", perr.Err, "kind", kind)
	}
}

func (p *Kafka) Publish(ev Event) {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		observability.IncJobEvent(ev.Kind, errQueueFull)
	}
}

// Close flushes queued events and closes the producer.
func (p *Kafka) Close() error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.closeMu.Unlock()

	// AsyncClose leaves the Errors channel to watchErrors, which returns once
	// the producer has flushed and closed it.
	<-p.stopped
	p.prod.AsyncClose()
	<-p.drained
	return nil
}

var errQueueFull = fmt.Errorf("jobevents: queue full")

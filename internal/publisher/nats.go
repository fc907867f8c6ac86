package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lzha174/BusModel/internal/sim"
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Flush() error
	Drain() error
	Close()
}

type NATSPublisher struct {
	nc          Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSSetConnected(connected bool)
	PublishObserve(d time.Duration)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("busmodel-simulator"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return New(nc, prefix, logSubjects, m), nil
}

// New wraps an established connection.
func New(nc Conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// SummaryMessage is published once per run after every bus and passenger record.
type SummaryMessage struct {
	RunID    string      `json:"runId"`
	Seed     int64       `json:"seed"`
	Patience int64       `json:"patience"`
	EndTime  int64       `json:"endTime"`
	Summary  sim.Summary `json:"summary"`
}

// PublishRun sends one message per bus, one per passenger and a closing summary.
// It stops at the first failed publish.
func (p *NATSPublisher) PublishRun(rl *sim.RunLog) error {
	run := subjectToken(rl.RunID)
	for _, b := range rl.Buses {
		if err := p.publish(p.subject(run, "bus", strconv.Itoa(int(b.ID))), b); err != nil {
			return err
		}
	}
	for _, pr := range rl.Passengers {
		if err := p.publish(p.subject(run, "passenger", strconv.Itoa(int(pr.ID))), pr); err != nil {
			return err
		}
	}
	msg := SummaryMessage{
		RunID:    rl.RunID,
		Seed:     rl.Seed,
		Patience: int64(rl.Patience),
		EndTime:  int64(rl.EndTime),
		Summary:  rl.Summary,
	}
	if err := p.publish(p.subject(run, "summary"), msg); err != nil {
		return err
	}
	if err := p.nc.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

func (p *NATSPublisher) subject(tokens ...string) string {
	return p.prefix + "." + strings.Join(tokens, ".")
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

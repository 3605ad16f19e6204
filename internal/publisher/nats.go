// Package publisher fans solve outcomes out over NATS.
package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix starts every outcome subject: servicearea.<session>.solved.
const SubjectPrefix = "servicearea"

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSSetConnected(connected bool)
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	nc          *nats.Conn
	pub         conn
	logSubjects bool
	metrics     PublisherMetrics
}

func NewNATSPublisher(url string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("servicearea"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
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
	return &NATSPublisher{nc: nc, pub: nc, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// SolvedMessage describes one finished solve.
type SolvedMessage struct {
	Session         string    `json:"session"`
	FacilityLabel   string    `json:"facilityLabel,omitempty"`
	Lon             float64   `json:"lon"`
	Lat             float64   `json:"lat"`
	TravelDirection string    `json:"travelDirection"`
	TimeOfDay       time.Time `json:"timeOfDay"`
	Breaks          []int     `json:"breaks"`
	Status          string    `json:"status"`
	Message         string    `json:"message,omitempty"`
	Zones           int       `json:"zones"`
	ElapsedMs       int64     `json:"elapsedMs"`
	Timestamp       time.Time `json:"timestamp"`
}

// Subject returns the subject outcomes of session are published on.
func Subject(session string) string {
	return fmt.Sprintf("%s.%s.solved", SubjectPrefix, subjectToken(session))
}

func (p *NATSPublisher) PublishSolved(msg SolvedMessage) error {
	subject := Subject(msg.Session)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	err = p.pub.Publish(subject, b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/alert"
)

// DefaultSubject is used when a nats action names no subject.
const DefaultSubject = "ratemon.alerts"

// publisher is the part of *nats.Conn the action uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes alert events as JSON on a subject.
type NATS struct {
	name    string
	subject string
	pub     publisher
	conn    *nats.Conn
	now     func() time.Time
}

// DialNATS connects to url and returns the action.
func DialNATS(name, url, subject string) (*NATS, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("shiftmon"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	n := newNATS(name, subject, conn)
	n.conn = conn
	return n, nil
}

func newNATS(name, subject string, pub publisher) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{name: name, subject: subject, pub: pub, now: time.Now}
}

func (n *NATS) Name() string { return n.name }

func (n *NATS) Notify(_ context.Context, a alert.Alert) error {
	data, err := json.Marshal(NewEvent(a, n.now()))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

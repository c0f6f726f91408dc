package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/biotrack/biotrack/internal/approval"
	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/record"
)

// ReviewEventDTO is the JSON body published for every review decision.
// Field names are part of the topic contract consumed by dashboards.
type ReviewEventDTO struct {
	RecordID       string        `json:"recordId"`
	Kind           record.Kind   `json:"kind"`
	OwnerID        string        `json:"ownerId"`
	CommonName     string        `json:"commonName,omitempty"`
	ScientificName string        `json:"scientificName,omitempty"`
	Latitude       float64       `json:"latitude"`
	Longitude      float64       `json:"longitude"`
	OldStatus      record.Status `json:"oldStatus"`
	NewStatus      record.Status `json:"newStatus"`
	ReviewerID     string        `json:"reviewerId"`
	ReviewNotes    string        `json:"reviewNotes,omitempty"`
	At             time.Time     `json:"at"`
}

// NewReviewEventDTO combines the event with the reviewed record's payload.
func NewReviewEventDTO(ev approval.Event, rec record.Record) ReviewEventDTO {
	return ReviewEventDTO{
		RecordID:       ev.RecordID,
		Kind:           ev.Kind,
		OwnerID:        ev.OwnerID,
		CommonName:     rec.CommonName,
		ScientificName: rec.ScientificName,
		Latitude:       rec.Location.Lat,
		Longitude:      rec.Location.Lon,
		OldStatus:      ev.OldStatus,
		NewStatus:      ev.NewStatus,
		ReviewerID:     ev.ActorID,
		ReviewNotes:    rec.ReviewNotes,
		At:             ev.At,
	}
}

// Publisher sends review events to <topic>/<kind>/<status>.
type Publisher struct {
	client Client
	topic  string
	log    logger.Logger
}

// NewPublisher wraps a connected (or auto connecting) client.
func NewPublisher(client Client, topic string, log logger.Logger) *Publisher {
	if topic == "" {
		topic = DefaultConfig().Topic
	}
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	return &Publisher{client: client, topic: strings.TrimRight(topic, "/"), log: log}
}

// Topic returns the topic an event is published on.
func (p *Publisher) Topic(ev approval.Event) string {
	return p.topic + "/" + string(ev.Kind) + "/" + string(ev.NewStatus)
}

// HandleReview publishes one review decision.
func (p *Publisher) HandleReview(ctx context.Context, ev approval.Event, rec record.Record) error {
	payload, err := json.Marshal(NewReviewEventDTO(ev, rec))
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryMQTTPublish).
			Context("record", ev.Key()).
			Build()
	}

	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}

	topic := p.Topic(ev)
	if err := p.client.Publish(ctx, topic, payload); err != nil {
		return err
	}
	p.log.Debug("review event published",
		logger.String("record", ev.Key()),
		logger.String("topic", topic))
	return nil
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	p.client.Disconnect()
}

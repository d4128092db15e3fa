package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-bulletin-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// recordMessage is the JSON value published for each newly archived record.
type recordMessage struct {
	ID        string  `json:"id"`
	Time      string  `json:"time"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Depth     float64 `json:"depth_km"`
	Magnitude float64 `json:"magnitude"`
	Location  string  `json:"location"`
	Month     string  `json:"month"`
	Year      int     `json:"year"`
}

// Publisher produces newly archived records to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the given topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes records in a single WriteMessages call. Messages are keyed
// by record ID so replays land on the same partition.
func (p *Publisher) Publish(ctx context.Context, records []domain.EarthquakeRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records: %w", len(msgs), err)
	}
	p.logger.Debug("published records", "count", len(msgs), "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an EarthquakeRecord into a Kafka message.
func serializeToMessage(r domain.EarthquakeRecord) (kafkago.Message, error) {
	data, err := json.Marshal(recordMessage{
		ID:        r.ID(),
		Time:      r.Time.Format(time.RFC3339),
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Depth:     r.Depth,
		Magnitude: r.Magnitude,
		Location:  r.Location,
		Month:     r.Month(),
		Year:      r.Year(),
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize earthquake record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.ID()),
		Value: data,
		Time:  r.Time,
		Headers: []kafkago.Header{
			{Key: "year", Value: []byte(strconv.Itoa(r.Year()))},
			{Key: "magnitude", Value: []byte(strconv.FormatFloat(r.Magnitude, 'f', -1, 64))},
		},
	}, nil
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes export rows to a Kafka topic.
// It implements pipeline.Loader.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// TallMessage is the JSON value of a tall-table message.
type TallMessage struct {
	RunID    string  `json:"run_id"`
	Dataset  string  `json:"dataset"`
	Variable string  `json:"variable"`
	RegionID string  `json:"region_id"`
	Date     string  `json:"date"`
	Value    float64 `json:"value"`
}

// WideMessage is the JSON value of a wide-table message. A null value is a
// day with no valid observation.
type WideMessage struct {
	RunID    string              `json:"run_id"`
	Dataset  string              `json:"dataset"`
	Variable string              `json:"variable"`
	RegionID string              `json:"region_id"`
	Values   map[string]*float64 `json:"values"`
}

// NewWriter creates a Kafka producer for the export topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Load publishes every tall row then every wide row of the export in a single
// WriteMessages call. Messages are keyed by region id so a region's rows land
// on one partition.
func (w *Writer) Load(ctx context.Context, exp domain.Export) error {
	msgs, err := exportMessages(exp)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %s export: %w", exp.Variable.Name, err)
	}
	w.logger.Debug("kafka export published", "variable", exp.Variable.Name, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func exportMessages(exp domain.Export) ([]kafkago.Message, error) {
	msgs := make([]kafkago.Message, 0, len(exp.Tall)+len(exp.Wide))
	for _, r := range exp.Tall {
		msg, err := serializeToMessage(exp, domain.TableTall, r.RegionID, TallMessage{
			RunID:    exp.RunID,
			Dataset:  exp.Dataset,
			Variable: exp.Variable.Name,
			RegionID: r.RegionID,
			Date:     r.DateKey,
			Value:    r.Value,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	for _, r := range exp.Wide {
		msg, err := serializeToMessage(exp, domain.TableWide, r.RegionID, WideMessage{
			RunID:    exp.RunID,
			Dataset:  exp.Dataset,
			Variable: exp.Variable.Name,
			RegionID: r.RegionID,
			Values:   r.Values,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// serializeToMessage marshals one export row into a Kafka message.
func serializeToMessage(exp domain.Export, table, key string, payload any) (kafkago.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s row %s: %w", table, key, err)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "table", Value: []byte(table)},
			{Key: "variable", Value: []byte(exp.Variable.Name)},
			{Key: "description", Value: []byte(exp.Variable.Description)},
			{Key: "run_id", Value: []byte(exp.RunID)},
			{Key: "exported_at", Value: []byte(exp.ExportedAt.Format(time.RFC3339))},
		},
	}, nil
}

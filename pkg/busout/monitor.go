package busout

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	scanner "github.com/next-exp/scanner_go/pkg"
)

// Tally is what the monitor has seen on the bus.
type Tally struct {
	Batches  int
	Generic  int
	Trigger  int
	Vandle   int
	Phoswich int
	Raw      int
	Traces   int
	Windows  int
	Summary  *scanner.RunStatistics
}

func (t Tally) Records() int {
	return t.Generic + t.Trigger + t.Vandle + t.Phoswich
}

// Monitor follows a run online, counting the published records until the
// run summary arrives.
type Monitor struct {
	records <-chan *message.Message
	summary <-chan *message.Message
	logger  scanner.Logger
	tally   Tally
}

// NewMonitor subscribes to both topics right away, so no message published
// after it returns is missed.
func NewMonitor(ctx context.Context, sub message.Subscriber, prefix string, logger scanner.Logger) (*Monitor, error) {
	records, err := sub.Subscribe(ctx, RecordsTopic(prefix))
	if err != nil {
		return nil, fmt.Errorf("error subscribing to %s: %w", RecordsTopic(prefix), err)
	}
	summary, err := sub.Subscribe(ctx, SummaryTopic(prefix))
	if err != nil {
		return nil, fmt.Errorf("error subscribing to %s: %w", SummaryTopic(prefix), err)
	}
	return &Monitor{records: records, summary: summary, logger: logger}, nil
}

// Run consumes messages until the summary is received, the subscriptions
// are closed or ctx is done. Subscriptions also close when their context is
// cancelled, so a closed channel reports ctx.Err().
func (m *Monitor) Run(ctx context.Context) (Tally, error) {
	for {
		select {
		case <-ctx.Done():
			return m.tally, ctx.Err()

		case msg, ok := <-m.records:
			if !ok {
				return m.tally, ctx.Err()
			}
			batch := scanner.RecordBatch{}
			if err := codec.Unmarshal(msg.Payload, &batch); err != nil {
				msg.Ack()
				m.logger.Error(fmt.Sprintf("Discarding message %s: %v", msg.UUID, err))
				continue
			}
			msg.Ack()
			m.tally.Batches++
			m.tally.Generic += len(batch.Generic)
			m.tally.Trigger += len(batch.Trigger)
			m.tally.Vandle += len(batch.Vandle)
			m.tally.Phoswich += len(batch.Phoswich)
			m.tally.Raw += len(batch.Raw)
			m.tally.Traces += len(batch.Traces)
			m.tally.Windows += len(batch.Windows)

		case msg, ok := <-m.summary:
			if !ok {
				return m.tally, ctx.Err()
			}
			stats := scanner.RunStatistics{}
			if err := codec.Unmarshal(msg.Payload, &stats); err != nil {
				msg.Ack()
				return m.tally, fmt.Errorf("error decoding summary: %w", err)
			}
			msg.Ack()
			m.tally.Summary = &stats
			m.logger.Info(fmt.Sprintf("Run finished: %d batches, %d records", m.tally.Batches, m.tally.Records()), "monitor")
			return m.tally, nil
		}
	}
}

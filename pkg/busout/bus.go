package busout

import (
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	scanner "github.com/next-exp/scanner_go/pkg"
)

var codec = sonic.ConfigStd

const (
	metadataFlush = "flush"
	metadataKind  = "kind"
)

func RecordsTopic(prefix string) string {
	return prefix + ".records"
}

func SummaryTopic(prefix string) string {
	return prefix + ".summary"
}

// Publisher is a sink that publishes every record batch and the run summary
// as JSON messages.
type Publisher struct {
	pub       message.Publisher
	prefix    string
	published int
}

func NewPublisher(pub message.Publisher, prefix string) *Publisher {
	return &Publisher{pub: pub, prefix: prefix}
}

// Published is the number of messages sent so far.
func (p *Publisher) Published() int {
	return p.published
}

func (p *Publisher) Write(batch *scanner.RecordBatch) error {
	if batch.Empty() {
		return nil
	}
	payload, err := codec.Marshal(batch)
	if err != nil {
		return fmt.Errorf("error encoding batch %d: %w", batch.Flush, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataKind, "records")
	msg.Metadata.Set(metadataFlush, strconv.Itoa(batch.Flush))
	if err := p.pub.Publish(RecordsTopic(p.prefix), msg); err != nil {
		return fmt.Errorf("error publishing batch %d: %w", batch.Flush, err)
	}
	p.published++
	return nil
}

func (p *Publisher) WriteSummary(stats scanner.RunStatistics) error {
	payload, err := codec.Marshal(stats)
	if err != nil {
		return fmt.Errorf("error encoding summary: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataKind, "summary")
	if err := p.pub.Publish(SummaryTopic(p.prefix), msg); err != nil {
		return fmt.Errorf("error publishing summary: %w", err)
	}
	p.published++
	return nil
}

func (p *Publisher) Close() error {
	return p.pub.Close()
}

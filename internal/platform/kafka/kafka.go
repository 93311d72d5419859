// Package kafka owns the franz-go client construction and topic bootstrap.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"catalog/internal/platform/config"
)

// Client wraps a franz-go producer client.
type Client struct {
	*kgo.Client
}

// New creates a Kafka client from the provided configuration.
// Returns nil if no brokers are configured.
func New(cfg config.KafkaConfig) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Client{Client: client}, nil
}

// EnsureTopics creates the given topics if they do not exist yet.
func (c *Client) EnsureTopics(ctx context.Context, topics ...string) error {
	adm := kadm.NewClient(c.Client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// Close flushes pending produce requests and closes the client.
func (c *Client) Close() {
	c.Client.Close()
}

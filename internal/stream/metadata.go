package stream

import (
	"context"
	"fmt"
	"sort"

	"github.com/segmentio/kafka-go"
)

// Partitions returns the sorted partition IDs of a topic.
func Partitions(ctx context.Context, brokers []string, topic string) ([]int, error) {
	client := &kafka.Client{Addr: kafka.TCP(brokers...)}

	resp, err := client.Metadata(ctx, &kafka.MetadataRequest{
		Topics: []string{topic},
	})
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", topic, err)
	}

	for _, t := range resp.Topics {
		if t.Name != topic {
			continue
		}
		if t.Error != nil {
			return nil, fmt.Errorf("metadata %s: %w", topic, t.Error)
		}
		ids := make([]int, 0, len(t.Partitions))
		for _, p := range t.Partitions {
			ids = append(ids, p.ID)
		}
		sort.Ints(ids)
		return ids, nil
	}

	return nil, fmt.Errorf("metadata %s: topic not found", topic)
}

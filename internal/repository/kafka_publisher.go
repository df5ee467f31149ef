package repository

import (
	"context"

	"StormFlow/internal/domain/models"
	"StormFlow/internal/domain/repository"
	pkgkafka "StormFlow/pkg/kafka"
)

// KafkaPublisher implements Publisher on two topics, one per stream.
// Messages are keyed so one location or market always lands on the same
// partition and keeps its order.
type KafkaPublisher struct {
	producer     *pkgkafka.Producer
	weatherTopic string
	marketTopic  string
}

// NewKafkaPublisher creates a Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, weatherTopic, marketTopic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, weatherTopic: weatherTopic, marketTopic: marketTopic}
}

func (p *KafkaPublisher) PublishObservations(ctx context.Context, obs []models.WeatherObservation) error {
	if len(obs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(obs))
	for i, o := range obs {
		msgs[i] = pkgkafka.Message{Key: []byte(o.LocationName), Value: o}
	}
	return p.producer.PublishBatch(ctx, p.weatherTopic, msgs)
}

func (p *KafkaPublisher) PublishQuotes(ctx context.Context, quotes []models.MarketQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(quotes))
	for i, q := range quotes {
		msgs[i] = pkgkafka.Message{Key: []byte(q.MarketID), Value: q}
	}
	return p.producer.PublishBatch(ctx, p.marketTopic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// Package bus carries producer opinions over NATS so out-of-process
// producers can feed the engine. Subjects follow the pattern
// {prefix}{producer}.{symbol}.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradequorum/internal/opinion"
)

const defaultPrefix = "opinions."

// Envelope wraps a raw opinion on the wire with delivery metadata.
type Envelope struct {
	ID        uuid.UUID          `json:"id"`
	Symbol    string             `json:"symbol"`
	Opinion   opinion.RawOpinion `json:"opinion"`
	Timestamp time.Time          `json:"timestamp"`
}

// OpinionHandler is a callback for received opinions.
type OpinionHandler func(env *Envelope) error

// Config configures the opinion bus.
type Config struct {
	NATSURL string
	Prefix  string // Subject prefix (default: "opinions.")
}

// Bus publishes and subscribes to producer opinions via NATS.
type Bus struct {
	nc     *nats.Conn
	prefix string
}

// New connects to NATS and returns an opinion bus.
func New(config Config) (*Bus, error) {
	nc, err := nats.Connect(
		config.NATSURL,
		nats.Name("tradequorum-engine"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	log.Info().
		Str("nats_url", config.NATSURL).
		Str("prefix", prefix).
		Msg("Opinion bus initialized")

	return &Bus{nc: nc, prefix: prefix}, nil
}

// Publish sends a producer's opinion for a symbol.
func (b *Bus) Publish(ctx context.Context, symbol string, raw opinion.RawOpinion) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !b.nc.IsConnected() {
		return fmt.Errorf("opinion bus not connected")
	}

	env := Envelope{
		ID:        uuid.New(),
		Symbol:    symbol,
		Opinion:   raw,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal opinion envelope: %w", err)
	}

	subject := b.subject(raw.ProducerID, symbol)
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish opinion: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("producer", raw.ProducerID).
		Str("symbol", symbol).
		Msg("Published opinion")

	return nil
}

// Subscribe registers a handler for a producer's opinions. Use "*" for
// either argument to match all producers or all symbols.
func (b *Bus) Subscribe(producerID, symbol string, handler OpinionHandler) (*nats.Subscription, error) {
	subject := b.subject(producerID, symbol)

	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Warn().
				Err(err).
				Str("subject", msg.Subject).
				Msg("Discarding malformed opinion envelope")
			return
		}
		if err := handler(&env); err != nil {
			log.Error().
				Err(err).
				Str("subject", msg.Subject).
				Str("producer", env.Opinion.ProducerID).
				Msg("Opinion handler failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	log.Info().Str("subject", subject).Msg("Subscribed to opinions")
	return sub, nil
}

// Flush waits until all published messages have been processed by the
// server.
func (b *Bus) Flush() error {
	return b.nc.Flush()
}

// Close drains and closes the NATS connection.
func (b *Bus) Close() {
	if b.nc != nil && !b.nc.IsClosed() {
		b.nc.Close()
	}
}

func (b *Bus) subject(producerID, symbol string) string {
	return fmt.Sprintf("%s%s.%s", b.prefix, producerID, symbol)
}

package tasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"horse.fit/storify/internal/logging"
)

// Transport bundles the publisher and subscriber of one queue backend.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Logger     watermill.LoggerAdapter
	Backend    string

	closers []func() error
}

// NewTransport connects to NATS when natsURL is set. Without it tasks stay
// inside the process on a gochannel, which only reaches consumers running
// in the same binary.
func NewTransport(natsURL string, logger zerolog.Logger) (*Transport, error) {
	wmLogger := logging.Watermill(logger)
	natsURL = strings.TrimSpace(natsURL)

	if natsURL == "" {
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, wmLogger)
		return &Transport{
			Publisher:  ch,
			Subscriber: ch,
			Logger:     wmLogger,
			Backend:    "gochannel",
			closers:    []func() error{ch.Close},
		}, nil
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("storify"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				wmLogger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			wmLogger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         natsURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              natsURL,
		QueueGroupPrefix: "storify",
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}

	return &Transport{
		Publisher:  pub,
		Subscriber: sub,
		Logger:     wmLogger,
		Backend:    "nats",
		closers:    []func() error{sub.Close, pub.Close},
	}, nil
}

func (t *Transport) Close() error {
	if t == nil {
		return nil
	}
	var firstErr error
	for _, closeFn := range t.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.closers = nil
	return firstErr
}

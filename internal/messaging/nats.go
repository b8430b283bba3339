package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/quotedesk/pkg/config"
	"github.com/quotedesk/pkg/logger"
	"github.com/quotedesk/pkg/models"
)

// NATSPublisher broadcasts reconciled records and live ticks over NATS so
// downstream consumers can react without polling the HTTP API. Optional;
// the application runs without it.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewNATSPublisher connects to the NATS server
func NewNATSPublisher(cfg *config.NATSConfig, baseLog *logrus.Logger) (*NATSPublisher, error) {
	log := logger.WithComponent(baseLog, "messaging")

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	log.WithField("url", cfg.URL).Info("Connected to NATS")

	return &NATSPublisher{
		conn:   conn,
		logger: log,
	}, nil
}

// PublishRecord publishes a reconciled record on quotes.<SYMBOL>.
func (p *NATSPublisher) PublishRecord(record *models.SymbolRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	subject := fmt.Sprintf("quotes.%s", record.Symbol)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}

	return nil
}

// PublishTick publishes a live trade on ticks.<SYMBOL>.
func (p *NATSPublisher) PublishTick(tick models.TradeTick) error {
	payload, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("failed to marshal tick: %w", err)
	}

	subject := fmt.Sprintf("ticks.%s", tick.Symbol)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish tick: %w", err)
	}

	return nil
}

// Close drains and closes the connection
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

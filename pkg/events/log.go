package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher records events in the application log. Used when no broker
// is configured.
type LogPublisher struct {
	logger *logrus.Logger
}

func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.WithFields(logrus.Fields{
		"event_id":   evt.ID,
		"event_type": evt.Type,
		"key":        evt.Key,
		"payload":    evt.Payload,
	}).Info("Domain event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

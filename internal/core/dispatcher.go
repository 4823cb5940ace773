package core

import (
	"github.com/rs/zerolog"

	"github.com/vovakirdan/quicklink-server/internal/metrics"
)

// EncodeFunc serializes an event into the bytes written to every recipient.
type EncodeFunc func(MessageEvent) ([]byte, error)

// DeliveryReport summarizes one fan-out.
type DeliveryReport struct {
	Recipients int // member ids handed in
	Handles    int // live handles found for them
	Delivered  int // pushes accepted
	Evicted    int // handles removed after a failed push
}

// Dispatcher pushes one encoded event to the live handles of a recipient set.
// A failing handle is evicted and never delays delivery to the others.
type Dispatcher struct {
	registry *Registry
	encode   EncodeFunc
	metrics  *metrics.HubMetrics
	log      zerolog.Logger
}

// NewDispatcher wires a dispatcher to a registry. metrics may be nil.
func NewDispatcher(registry *Registry, encode EncodeFunc, m *metrics.HubMetrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		encode:   encode,
		metrics:  m,
		log:      logger,
	}
}

// Deliver encodes ev once and pushes it to every live handle of recipients.
// Users with no live handle are skipped silently.
func (d *Dispatcher) Deliver(ev MessageEvent, recipients []int64) DeliveryReport {
	report := DeliveryReport{Recipients: len(recipients)}
	if len(recipients) == 0 {
		return report
	}

	bindings := d.registry.HandlesFor(recipients)
	report.Handles = len(bindings)
	if len(bindings) == 0 {
		return report
	}

	payload, err := d.encode(ev)
	if err != nil {
		d.log.Error().Err(err).
			Int64("message_id", ev.MessageID).
			Int64("channel_id", ev.ChannelID).
			Msg("encode message event")
		if d.metrics != nil {
			d.metrics.EncodeFailures.Inc()
		}
		return report
	}

	for _, b := range bindings {
		if err := b.Handle.Send(payload); err != nil {
			reason := evictionReason(err)
			d.registry.Unregister(b.UserID, b.Handle)
			b.Handle.Close(reason)
			report.Evicted++
			if d.metrics != nil {
				d.metrics.Evictions.WithLabelValues(reason).Inc()
			}
			d.log.Warn().Err(err).
				Int64("user_id", b.UserID).
				Str("conn_id", b.Handle.ID()).
				Str("reason", reason).
				Msg("evicted connection after failed push")
			continue
		}
		report.Delivered++
	}

	if d.metrics != nil {
		d.metrics.Deliveries.Add(float64(report.Delivered))
	}
	return report
}

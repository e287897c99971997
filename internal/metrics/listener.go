package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"staybot/internal/bus"
)

// Observe wires the pre-defined counters to the internal event bus so the
// rest of the application only has to emit events.
func Observe(ebus *bus.EventBus) {
	ebus.On(bus.EventMessageReceived, func(bus.Event) { MessagesTotal.Inc() })
	ebus.On(bus.EventPersonaSwitched, func(bus.Event) { PersonaSwitches.Inc() })
	ebus.On(bus.EventQuoteIssued, func(bus.Event) { QuotesIssued.Inc() })
	ebus.On(bus.EventNegotiation, func(bus.Event) { NegotiationsTotal.Inc() })
	ebus.On(bus.EventPaymentUploaded, func(bus.Event) { PaymentProofs.Inc() })
	ebus.On(bus.EventBookingConfirmed, func(bus.Event) { BookingsConfirmed.Inc() })
	ebus.On(bus.EventBookingRejected, func(bus.Event) { BookingsRejected.Inc() })
}

// Serve exposes the collector on the given port at the given endpoint and
// blocks until ctx is cancelled.
func Serve(ctx context.Context, port int, endpoint string, logger *slog.Logger) error {
	if endpoint == "" {
		endpoint = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(endpoint, Collector.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info("metrics server listening", "port", port, "endpoint", endpoint)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

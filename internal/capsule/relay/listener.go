package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// Listener turns PostgreSQL NOTIFYs on a channel into relay wake-ups.
type Listener struct {
	dsn     string
	channel string
	logger  *slog.Logger
}

func NewListener(dsn, channel string, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{dsn: dsn, channel: channel, logger: logger}
}

// Run calls onNotify for every notification, and after every reconnect since
// notifications sent while disconnected are lost. It returns nil on shutdown.
func (l *Listener) Run(ctx context.Context, onNotify func()) error {
	listener := pq.NewListener(l.dsn, listenerMinReconnect, listenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				l.logger.Warn("outbox listener connection event", "event", int(ev), "error", err)
			}
		})
	defer func() {
		_ = listener.Close()
	}()

	if err := listener.Listen(l.channel); err != nil {
		return fmt.Errorf("listen on %s: %w", l.channel, err)
	}

	ping := time.NewTicker(listenerPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-listener.Notify:
			// nil notifications signal a reconnect
			onNotify()
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				l.logger.WarnContext(ctx, "outbox listener ping failed", "error", err)
			}
		}
	}
}

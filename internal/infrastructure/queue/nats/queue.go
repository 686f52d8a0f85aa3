package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/infrastructure/resilience"
)

const integrityWorkersGroup = "integrity-workers"

// Bus publishes alert notifications and carries asynchronous integrity
// check requests from the API to the worker.
type Bus struct {
	conn             *nats.Conn
	alertSubject     string
	integritySubject string
	executor         *resilience.Executor
	logger           *slog.Logger
}

type Options struct {
	AlertSubject         string
	IntegritySubject     string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	alertSubject := options.AlertSubject
	if alertSubject == "" {
		alertSubject = "alerts.raised"
	}
	integritySubject := options.IntegritySubject
	if integritySubject == "" {
		integritySubject = "integrity.check.requested"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("tradedoc-ledger"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:             conn,
		alertSubject:     alertSubject,
		integritySubject: integritySubject,
		executor:         options.ResilienceExecutor,
		logger:           logger,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishAlertRaised(ctx context.Context, alert domain.Alert) error {
	payload, err := encodeAlert(alert)
	if err != nil {
		return err
	}
	return b.publish(ctx, b.alertSubject, payload)
}

func (b *Bus) PublishIntegrityCheckRequested(ctx context.Context, req domain.BatchCheckRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode integrity request: %w", err)
	}
	return b.publish(ctx, b.integritySubject, payload)
}

func (b *Bus) publish(ctx context.Context, subject string, payload []byte) error {
	err := b.executor.Execute(ctx, "nats.publish", func(_ context.Context) error {
		if err := b.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}, classifyNATSError)
	return wrapTemporaryIfNeeded(err)
}

// SubscribeIntegrityCheckRequested delivers each request to exactly one
// worker in the queue group and blocks until ctx is done.
func (b *Bus) SubscribeIntegrityCheckRequested(ctx context.Context, handler func(context.Context, domain.BatchCheckRequest) error) error {
	sub, err := b.conn.QueueSubscribe(b.integritySubject, integrityWorkersGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		req, err := decodeIntegrityRequest(msg.Data)
		if err != nil {
			b.logger.Error("integrity_request_decode_failed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, req); err != nil {
			b.logger.Error("integrity_request_failed",
				"organization", req.Organization,
				"requested_by", req.RequestedBy,
				"error", err,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

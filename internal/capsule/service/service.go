package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"timevault/internal/capsule/address"
	"timevault/internal/capsule/events"
	"timevault/internal/capsule/ledger"
	"timevault/internal/capsule/metrics"
	"timevault/internal/capsule/models"
	id "timevault/pkg/domain"
	dErrors "timevault/pkg/domain-errors"
	"timevault/pkg/platform/sentinel"
	"timevault/pkg/requestcontext"
)

const tracerName = "timevault/internal/capsule/service"

// Service runs every capsule lifecycle operation as one ledger transaction.
// The caller is the identity in the request context; the clock is
// requestcontext.Now truncated to whole seconds.
type Service struct {
	ledger  ledger.Ledger
	reader  ledger.Reader
	limits  models.Limits
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLimits overrides the default text bounds. Validate them first.
func WithLimits(limits models.Limits) Option {
	return func(s *Service) {
		s.limits = limits
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// New constructs a Service. reader serves the non-transactional reads and is
// usually the same backend as l.
func New(l ledger.Ledger, reader ledger.Reader, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		reader: reader,
		limits: models.DefaultLimits(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run executes fn in a transaction over keys and records the outcome.
func (s *Service) run(ctx context.Context, op string, keys []string, fn func(ctx context.Context, tx ledger.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "capsule."+op)
	defer span.End()

	start := time.Now()
	err := translate(s.ledger.RunInTx(ledger.WithKeys(ctx, keys...), fn))
	s.metrics.ObserveOperation(op, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		s.logFailure(ctx, op, err)
	}
	return err
}

// translate maps backend failures onto the error taxonomy. Categorized
// errors from fn pass through untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent modification, retry the operation")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger failure")
	}
}

func caller(ctx context.Context) (id.Identity, error) {
	identity := requestcontext.Identity(ctx)
	if identity.IsNil() {
		return id.NilIdentity, dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}
	return identity, nil
}

func now(ctx context.Context) time.Time {
	return truncate(requestcontext.Now(ctx))
}

func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// loadCapsule verifies ref before reading so a bad claim fails without
// touching state.
func loadCapsule(ctx context.Context, tx ledger.Tx, ref models.CapsuleRef) (*models.Capsule, error) {
	if err := ref.Verify(); err != nil {
		return nil, err
	}
	c, err := tx.Capsule(ctx, ref.Address)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, models.Fail(models.ErrCapsuleNotFound, "")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load capsule")
	}
	if err := c.Matches(ref); err != nil {
		return nil, err
	}
	return c, nil
}

func storeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+what)
}

func appendEvent(ctx context.Context, tx ledger.Tx, addr address.Address, ev events.Event, at time.Time) error {
	env, err := events.Wrap(ctx, addr, ev, at)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
	}
	return storeErr(tx.Append(ctx, env), "append event")
}

func spanAddress(ctx context.Context, ref models.CapsuleRef) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("capsule.address", ref.Address.String()),
		attribute.String("capsule.creator", ref.Creator.String()),
		attribute.Int64("capsule.id", int64(ref.ID)),
	)
}

func (s *Service) logAudit(ctx context.Context, event events.Type, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	s.logger.InfoContext(ctx, string(event), args...)
}

func (s *Service) logFailure(ctx context.Context, op string, err error) {
	if s.logger == nil {
		return
	}
	code := dErrors.CodeOf(err)
	args := []any{"operation", op, "code", string(code), "error", err}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	switch code {
	case dErrors.CodeInternal, dErrors.CodeTimeout:
		s.logger.ErrorContext(ctx, "capsule operation failed", args...)
	default:
		s.logger.WarnContext(ctx, "capsule operation rejected", args...)
	}
}

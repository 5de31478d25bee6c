// Package nats serves the product catalog over NATS request/reply.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	perrors "github.com/abgdnv/product-catalog/internal/errors"
	"github.com/abgdnv/product-catalog/internal/service"
	"github.com/abgdnv/product-catalog/internal/transport/reply"
	"github.com/abgdnv/product-catalog/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Message patterns served by the catalog. Each pattern is also the NATS subject.
const (
	PatternCreate   = "create-product"
	PatternFindAll  = "find-all-products"
	PatternFindOne  = "find-one-product"
	PatternUpdate   = "update-product"
	PatternRemove   = "remove-product"
	PatternValidate = "validate-products"
)

// Patterns returns every served pattern.
func Patterns() []string {
	return []string{PatternCreate, PatternFindAll, PatternFindOne, PatternUpdate, PatternRemove, PatternValidate}
}

const (
	instrumentationName = "product-catalog/nats"
	pendingPerWorker    = 64
)

type handlerFunc func(ctx context.Context, payload []byte) (reply.Envelope, error)

// Config holds the subscription settings of the server.
type Config struct {
	Queue   string
	Workers int
}

// Server dispatches NATS requests to the ProductService.
type Server struct {
	nc       *nats.Conn
	service  service.ProductService
	validate *validator.Validate
	logger   *slog.Logger
	cfg      Config
	handlers map[string]handlerFunc

	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewServer creates a Server. nc may be nil when the server is only used to handle raw messages.
func NewServer(nc *nats.Conn, svc service.ProductService, cfg Config, logger *slog.Logger) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	meter := otel.Meter(instrumentationName)
	requests, err := meter.Int64Counter("rpc_server_requests", metric.WithDescription("Total number of handled RPC requests"))
	if err != nil {
		panic(fmt.Sprintf("failed to create rpc_server_requests counter: %v", err))
	}
	duration, err := meter.Float64Histogram("rpc_server_duration",
		metric.WithDescription("Duration of handled RPC requests"),
		metric.WithUnit("s"))
	if err != nil {
		panic(fmt.Sprintf("failed to create rpc_server_duration histogram: %v", err))
	}

	s := &Server{
		nc:       nc,
		service:  svc,
		validate: service.NewValidator(),
		logger:   logger.With("component", "nats"),
		cfg:      cfg,
		tracer:   otel.Tracer(instrumentationName),
		requests: requests,
		duration: duration,
	}
	s.handlers = map[string]handlerFunc{
		PatternCreate:   s.create,
		PatternFindAll:  s.findAll,
		PatternFindOne:  s.findOne,
		PatternUpdate:   s.update,
		PatternRemove:   s.remove,
		PatternValidate: s.validateIDs,
	}
	return s
}

// Start subscribes to every pattern within the queue group and processes requests
// with a fixed pool of workers until ctx is cancelled. On cancellation the subscriptions
// are removed first and every request already received is still answered before Start
// returns ctx.Err().
func (s *Server) Start(ctx context.Context) error {
	msgs := make(chan *nats.Msg, s.cfg.Workers*pendingPerWorker)
	subs := make([]*nats.Subscription, 0, len(s.handlers))
	for _, pattern := range Patterns() {
		sub, err := s.nc.ChanQueueSubscribe(pattern, s.cfg.Queue, msgs)
		if err != nil {
			s.unsubscribe(subs)
			return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		}
		subs = append(subs, sub)
	}
	if err := s.nc.Flush(); err != nil {
		s.unsubscribe(subs)
		return fmt.Errorf("failed to flush subscriptions: %w", err)
	}
	s.logger.Info("RPC server subscribed", "patterns", Patterns(), "queue", s.cfg.Queue, "workers", s.cfg.Workers)

	// in-flight requests are finished on shutdown
	reqCtx := context.WithoutCancel(ctx)
	stop := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			runWorker(stop, msgs, func(msg *nats.Msg) { s.serve(reqCtx, msg) })
			return nil
		})
	}

	<-ctx.Done()
	// no message reaches msgs once every subscription is gone
	s.unsubscribe(subs)
	close(stop)
	_ = g.Wait()
	s.logger.Info("RPC server stopped")
	return ctx.Err()
}

func (s *Server) unsubscribe(subs []*nats.Subscription) {
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe", "subject", sub.Subject, "error", err)
		}
	}
}

// runWorker serves msgs until stop is closed, then serves whatever is still queued.
func runWorker(stop <-chan struct{}, msgs <-chan *nats.Msg, serve func(*nats.Msg)) {
	for {
		select {
		case msg := <-msgs:
			serve(msg)
		case <-stop:
			for {
				select {
				case msg := <-msgs:
					serve(msg)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) serve(ctx context.Context, msg *nats.Msg) {
	out := s.handle(ctx, msg.Subject, msg.Header, msg.Data)
	if msg.Reply == "" {
		s.logger.WarnContext(ctx, "Request without reply subject dropped", "subject", msg.Subject)
		return
	}
	if err := msg.Respond(out); err != nil {
		s.logger.ErrorContext(ctx, "Failed to send reply", "subject", msg.Subject, "error", err)
	}
}

// handle processes one request body received on subject and returns the encoded reply packet.
func (s *Server) handle(ctx context.Context, subject string, header nats.Header, body []byte) []byte {
	start := time.Now()
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
	ctx, span := s.tracer.Start(ctx, subject,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("messaging.system", "nats"),
			attribute.String("messaging.destination.name", subject),
		))
	defer span.End()

	in := decodePacket(body)
	reqID := header.Get(web.RequestIDHeader)
	if reqID == "" {
		reqID = in.ID
	}
	if reqID == "" {
		reqID = uuid.NewString()
	}
	ctx = web.WithRequestID(ctx, reqID)
	logger := s.logger.With("pattern", subject)
	logger.DebugContext(ctx, "Received request")

	out := outbound{ID: in.ID, IsDisposed: true}
	env, err := s.dispatch(ctx, subject, in.payload(), logger)
	status := env.StatusCode
	if err != nil {
		errBody := reply.FromError(err)
		out.Err = &errBody
		status = errBody.Status
		span.SetStatus(codes.Error, errBody.Message)
		if status >= 500 {
			span.RecordError(err)
			logger.ErrorContext(ctx, "Request failed", "status", status, "error", err)
		} else {
			logger.WarnContext(ctx, "Request rejected", "status", status, "error", err)
		}
	} else {
		out.Response = &env
		logger.DebugContext(ctx, "Request completed", "status", status)
	}
	span.SetAttributes(attribute.Int("rpc.status_code", status))

	attrs := metric.WithAttributes(attribute.String("pattern", subject), attribute.Int("status", status))
	s.requests.Add(ctx, 1, attrs)
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	encoded, err := json.Marshal(out)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to encode reply", "error", err)
		fallback, _ := json.Marshal(outbound{
			ID:         in.ID,
			Err:        &reply.ErrorBody{Status: 500, Message: "internal server error"},
			IsDisposed: true,
		})
		return fallback
	}
	return encoded
}

// dispatch runs the handler registered for subject. A panicking handler yields an Internal error.
func (s *Server) dispatch(ctx context.Context, subject string, payload []byte, logger *slog.Logger) (env reply.Envelope, err error) {
	h, ok := s.handlers[subject]
	if !ok {
		return reply.Envelope{}, perrors.New(perrors.NotFound, fmt.Sprintf("There is no matching message handler defined for %s", subject))
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "Panic recovered", "panic", rec, "stack", string(debug.Stack()))
			env, err = reply.Envelope{}, perrors.New(perrors.Internal, "internal server error")
		}
	}()
	return h(ctx, payload)
}

// Package service implements the producer service: the piece that puts
// commands on the replicated log and applies them as they come back.
//
// Submission and application are decoupled. Producers submit through Send;
// every member runs the same apply loop over the same ordered log:
//
//	Send → codec.Encode → protocol frame → middleware chain → log.Submit
//	Run  → log.Subscribe → for each entry, in order:
//	         Message: resolve targets → go handler → SendAck (SYNC / REQUEST_REPLY)
//	         Ack:     addressed to this member → registry.AckRoute → producer.OnAck
//
// Because every replica sees every entry in the same order, dispatch
// decisions and Ack routing need no coordination beyond the log itself.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zheilbron/atomix/codec"
	"github.com/zheilbron/atomix/future"
	"github.com/zheilbron/atomix/loadbalance"
	"github.com/zheilbron/atomix/message"
	"github.com/zheilbron/atomix/middleware"
	"github.com/zheilbron/atomix/protocol"
	"github.com/zheilbron/atomix/registry"
	"github.com/zheilbron/atomix/replog"
	"github.com/zheilbron/atomix/serializer"
)

var (
	ErrShutdown       = errors.New("service: shut down")
	ErrAlreadyRunning = errors.New("service: apply loop already running")
	ErrUnknownMember  = errors.New("service: unknown member")
)

// Handler consumes the messages sent by producers with a given name. Its
// result is the REQUEST_REPLY reply; for SYNC only err matters.
type Handler func(ctx context.Context, msg *message.Message) (any, error)

type Service struct {
	member      string
	log         replog.Log
	serializer  *serializer.Serializer
	codecType   codec.CodecType
	codecs      map[byte]codec.Codec // every codec, for decoding entries from any member
	members     []loadbalance.Member
	middlewares []middleware.Middleware
	submit      middleware.SubmitFunc // middleware(middleware(...(log.Submit)))
	registry    *registry.Registry
	logger      *zap.Logger

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	// Only touched by the apply loop.
	balancers map[message.DispatchPolicy]loadbalance.Balancer

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	shutdown atomic.Bool

	applied  atomic.Uint64  // index of the last applied entry
	inflight sync.WaitGroup // running handlers
}

type Option func(*Service)

func WithCodec(t codec.CodecType) Option {
	return func(s *Service) { s.codecType = t }
}

// WithSerializer sets the serializer used for payloads. It must have the
// message writers registered (see message.Register).
func WithSerializer(ser *serializer.Serializer) Option {
	return func(s *Service) { s.serializer = ser }
}

// WithMembers sets the group the dispatch policies choose from. It
// defaults to the local member alone.
func WithMembers(members ...loadbalance.Member) Option {
	return func(s *Service) { s.members = append([]loadbalance.Member(nil), members...) }
}

// WithMiddleware adds submission middleware. Middlewares are applied in the
// order they are given.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Service) { s.middlewares = append(s.middlewares, mws...) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRegistry shares a producer registry between services.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Service) { s.registry = r }
}

// New creates the service for member on top of log. The log is not owned:
// Shutdown leaves it open.
func New(member string, log replog.Log, opts ...Option) (*Service, error) {
	s := &Service{
		member:    member,
		log:       log,
		codecType: codec.CodecTypeBinary,
		handlers:  make(map[string]Handler),
		balancers: make(map[message.DispatchPolicy]loadbalance.Balancer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.serializer == nil {
		s.serializer = message.NewSerializer()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	if len(s.members) == 0 {
		s.members = []loadbalance.Member{{Name: member}}
	}

	s.codecs = make(map[byte]codec.Codec)
	for _, t := range []codec.CodecType{codec.CodecTypeBinary, codec.CodecTypeJSON} {
		c, err := codec.GetCodec(t, s.serializer)
		if err != nil {
			return nil, err
		}
		s.codecs[byte(t)] = c
	}
	if _, ok := s.codecs[byte(s.codecType)]; !ok {
		return nil, fmt.Errorf("%w: %d", codec.ErrUnknownCodec, s.codecType)
	}

	// Build the middleware chain once at startup (not per-submission)
	s.submit = middleware.Chain(s.middlewares...)(log.Submit)
	s.logger = s.logger.With(zap.String("member", member))
	return s, nil
}

func (s *Service) Member() string                     { return s.member }
func (s *Service) Registry() *registry.Registry       { return s.registry }
func (s *Service) Serializer() *serializer.Serializer { return s.serializer }

// Members returns the configured group.
func (s *Service) Members() []loadbalance.Member {
	return append([]loadbalance.Member(nil), s.members...)
}

// Applied returns the index of the last entry the apply loop processed.
func (s *Service) Applied() uint64 {
	return s.applied.Load()
}

// Handle registers h for messages produced under name, replacing any
// previous handler. A nil h removes the handler.
func (s *Service) Handle(name string, h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	if h == nil {
		delete(s.handlers, name)
		return
	}
	s.handlers[name] = h
}

func (s *Service) handler(name string) Handler {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return s.handlers[name]
}

// Send submits msg. The future completes with the committed log index once
// the log accepted the entry; it says nothing about delivery.
func (s *Service) Send(ctx context.Context, msg *message.Message) *future.Future[uint64] {
	if s.shutdown.Load() {
		return future.Failed[uint64](ErrShutdown)
	}
	return s.submitCommand(ctx, protocol.KindMessage, msg)
}

// SendAck submits ack. Acks are still accepted during Shutdown so handlers
// that finish in time can answer.
func (s *Service) SendAck(ctx context.Context, ack *message.Ack) *future.Future[uint64] {
	return s.submitCommand(ctx, protocol.KindAck, ack)
}

// submitCommand encodes synchronously, so encoding errors such as an
// unregistered payload type are already set on the returned future.
func (s *Service) submitCommand(ctx context.Context, kind protocol.Kind, cmd any) *future.Future[uint64] {
	c := s.codecs[byte(s.codecType)]
	body, err := c.Encode(cmd)
	if err != nil {
		return future.Failed[uint64](err)
	}
	frame, err := protocol.Marshal(&protocol.Header{CodecType: byte(c.Type()), Kind: kind}, body)
	if err != nil {
		return future.Failed[uint64](err)
	}

	f := future.New[uint64]()
	go func() {
		index, err := s.submit(ctx, frame)
		if err != nil {
			f.Fail(err)
			return
		}
		f.Complete(index)
	}()
	return f
}

// Run applies log entries until ctx is done, the log fails, or Shutdown is
// called. It resumes after the last applied entry, so it may be called
// again after it returns.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		return ErrShutdown
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running, s.cancel, s.done = true, cancel, done
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	// handlers and their Acks outlive the loop so Shutdown can drain them
	handlerCtx := context.WithoutCancel(ctx)

	from := s.applied.Load() + 1
	s.logger.Info("apply loop started", zap.Uint64("from", from))
	entries, errc := s.log.Subscribe(ctx, from)
	for e := range entries {
		if e.Index <= s.applied.Load() {
			continue
		}
		s.apply(handlerCtx, e)
		s.applied.Store(e.Index)
	}

	select {
	case err := <-errc:
		if s.shutdown.Load() && errors.Is(err, replog.ErrClosed) {
			return nil
		}
		s.logger.Error("apply loop stopped", zap.Error(err))
		return err
	default:
	}
	if s.shutdown.Load() {
		return nil
	}
	return ctx.Err()
}

// Shutdown performs graceful shutdown:
//  1. Reject new messages from producers
//  2. Stop the apply loop
//  3. Wait for in-flight handlers to finish and submit their Acks (with timeout)
func (s *Service) Shutdown(timeout time.Duration) error {
	s.shutdown.Store(true)
	deadline := time.After(timeout)

	s.mu.Lock()
	cancel, done, running := s.cancel, s.done, s.running
	s.mu.Unlock()
	if running {
		cancel()
		select {
		case <-done:
		case <-deadline:
			return fmt.Errorf("timeout waiting for the apply loop to stop")
		}
	}

	handlersDone := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(handlersDone)
	}()

	select {
	case <-handlersDone:
		s.logger.Info("service shut down", zap.Uint64("applied", s.applied.Load()))
		return nil
	case <-deadline:
		return fmt.Errorf("timeout waiting for ongoing handlers to finish")
	}
}

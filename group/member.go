// Package group is the member-level API: one Member per process joins the
// group through a replicated log and hands out producers and consumers.
//
//	m, _ := group.Open(ctx, cfg, logger)
//	m.Consumer("orders", handleOrder)
//	m.Start(ctx)
//	p := m.Producer("orders", producer.Options{Delivery: message.Sync})
//	err := p.Send(ctx, "m2", order).Get(ctx)
package group

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zheilbron/atomix/producer"
	"github.com/zheilbron/atomix/replog"
	"github.com/zheilbron/atomix/serializer"
	"github.com/zheilbron/atomix/service"
)

type Member struct {
	svc    *service.Service
	log    replog.Log // closed by Close when the Member opened it
	logger *zap.Logger

	mu        sync.Mutex
	producers []*producer.Producer
	consumers map[string]*Consumer
	started   bool
	runErr    chan error
}

// New wraps an existing service. The service's log is left open by Close.
func New(svc *service.Service, logger *zap.Logger) *Member {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Member{
		svc:       svc,
		logger:    logger.With(zap.String("member", svc.Member())),
		consumers: make(map[string]*Consumer),
		runErr:    make(chan error, 1),
	}
}

func (m *Member) Name() string              { return m.svc.Member() }
func (m *Member) Service() *service.Service { return m.svc }

// Serializer is where application payload types are registered. Every
// member of the group must register the same types under the same ids.
func (m *Member) Serializer() *serializer.Serializer { return m.svc.Serializer() }

// Producer creates a producer sending through this member.
func (m *Member) Producer(name string, opts producer.Options) *producer.Producer {
	if opts.Logger == nil {
		opts.Logger = m.logger
	}
	p := producer.New(name, opts, m.svc)

	m.mu.Lock()
	m.producers = append(m.producers, p)
	m.mu.Unlock()
	return p
}

// Consumer handles the messages of producers named name that this member
// receives. A second consumer for the same name replaces the first.
func (m *Member) Consumer(name string, h service.Handler) *Consumer {
	c := &Consumer{name: name, member: m}
	m.mu.Lock()
	m.consumers[name] = c
	m.mu.Unlock()
	m.svc.Handle(name, h)
	return c
}

// Start runs the apply loop in the background. Messages that arrive before
// a consumer is registered for them are answered as unhandled, so register
// consumers first.
func (m *Member) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go func() {
		err := m.svc.Run(ctx)
		if err != nil {
			m.logger.Error("apply loop exited", zap.Error(err))
		}
		m.runErr <- err
	}()
}

// Err receives the apply loop's exit error once it stops.
func (m *Member) Err() <-chan error {
	return m.runErr
}

// Close closes every producer, drains the service and closes the log if
// the Member opened it.
func (m *Member) Close(timeout time.Duration) error {
	m.mu.Lock()
	producers := m.producers
	m.producers = nil
	m.mu.Unlock()

	var err error
	for _, p := range producers {
		err = multierr.Append(err, p.Close())
	}
	err = multierr.Append(err, m.svc.Shutdown(timeout))
	if m.log != nil {
		err = multierr.Append(err, m.log.Close())
	}
	return err
}

// Consumer is a registered message handler.
type Consumer struct {
	name   string
	member *Member
}

func (c *Consumer) Name() string { return c.name }

// Close unregisters the handler unless it has been replaced since.
func (c *Consumer) Close() {
	m := c.member
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumers[c.name] != c {
		return
	}
	delete(m.consumers, c.name)
	m.svc.Handle(c.name, nil)
}

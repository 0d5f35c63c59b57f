// Package producer implements the sending side of group messaging.
//
// A Producer turns application payloads into Message commands, submits
// them through the producer service and resolves one future per message:
//
//	Async:         Send ──submit──▶ future resolved by the submission outcome
//	Sync/Reply:    Send ──store pending[id]──submit──▶ ... OnAck(id) resolves
//	                                          └─ submission error: remove pending[id], fail
//
// pending[id] is removed exactly once, by whichever of OnAck or the
// submission-failure path gets there first; the loser finds nothing and
// does nothing.
package producer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/zheilbron/atomix/future"
	"github.com/zheilbron/atomix/message"
	"github.com/zheilbron/atomix/registry"
)

var ErrClosed = errors.New("producer is closed")

// Service submits commands to the replicated log on behalf of producers.
type Service interface {
	// Member is the name of the local member; it becomes Message.Source.
	Member() string
	// Send submits msg. The future reports whether the log accepted the
	// command (with its log index), never the remote processing outcome.
	Send(ctx context.Context, msg *message.Message) *future.Future[uint64]
	// Registry is the process-wide producer registry used for Ack routing.
	Registry() *registry.Registry
}

// Options are fixed for the lifetime of a producer.
type Options struct {
	Dispatch message.DispatchPolicy
	Delivery message.DeliveryPolicy
	Logger   *zap.Logger
}

// Producer sends messages under one name with fixed policies and resolves
// one future per message.
type Producer struct {
	id     int
	gen    uint64
	name   string
	opts   Options
	svc    Service
	logger *zap.Logger

	messageID atomic.Uint64 // last allocated message id
	pending   sync.Map      // map[uint64]*future.Future[any]
	closed    atomic.Bool
}

// New creates a producer and registers it with the service's registry, so
// Acks can be routed to it as soon as it is returned.
func New(name string, opts Options, svc Service) *Producer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Producer{
		name: name,
		opts: opts,
		svc:  svc,
	}
	// Fields are set before the registry makes p routable.
	svc.Registry().RegisterFunc(func(r registry.Registration) registry.AckHandler {
		p.id, p.gen = r.ID, r.Generation
		p.logger = logger.With(zap.String("producer", name), zap.Int("producerID", r.ID))
		return p
	})
	return p
}

func (p *Producer) ID() int            { return p.id }
func (p *Producer) Generation() uint64 { return p.gen }
func (p *Producer) Name() string       { return p.name }
func (p *Producer) Options() Options   { return p.opts }

// Send delivers payload to member ("" lets the dispatch policy pick) and
// returns a future for the outcome:
//
//   - Async:        nil once the log accepted the message.
//   - Sync:         nil on success, a *message.FailedError if the receiver reported failure.
//   - RequestReply: the reply payload.
//
// A submission error fails the future with that error under every policy.
func (p *Producer) Send(ctx context.Context, member string, payload any) *future.Future[any] {
	if p.closed.Load() {
		return future.Failed[any](ErrClosed)
	}

	msg := &message.Message{
		Member:     member,
		Source:     p.svc.Member(),
		ProducerID: p.id,
		Generation: p.gen,
		Producer:   p.name,
		ID:         p.messageID.Add(1),
		Payload:    payload,
		Dispatch:   p.opts.Dispatch,
		Delivery:   p.opts.Delivery,
	}

	if p.opts.Delivery == message.Async {
		return p.sendAsync(ctx, msg)
	}
	return p.sendSync(ctx, msg)
}

// sendAsync reports the submission outcome only. No pending entry is kept
// because no Ack will ever arrive.
func (p *Producer) sendAsync(ctx context.Context, msg *message.Message) *future.Future[any] {
	result := future.New[any]()
	p.svc.Send(ctx, msg).WhenComplete(func(_ uint64, err error) {
		if err != nil {
			result.Fail(err)
			return
		}
		result.Complete(nil)
	})
	return result
}

func (p *Producer) sendSync(ctx context.Context, msg *message.Message) *future.Future[any] {
	result := future.New[any]()
	// Store BEFORE submitting: the Ack may be applied before Send returns.
	p.pending.Store(msg.ID, result)

	id := msg.ID
	p.svc.Send(ctx, msg).WhenComplete(func(_ uint64, err error) {
		if err == nil {
			return
		}
		if f, ok := p.pending.LoadAndDelete(id); ok {
			p.logger.Warn("message submission failed", zap.Uint64("messageID", id), zap.Error(err))
			f.(*future.Future[any]).Fail(err)
		}
	})
	return result
}

// OnAck resolves the pending future for ack.MessageID. Acks for unknown,
// already resolved or already failed ids are ignored.
func (p *Producer) OnAck(ack *message.Ack) {
	v, ok := p.pending.LoadAndDelete(ack.MessageID)
	if !ok {
		p.logger.Debug("ignoring ack without pending message", zap.Uint64("messageID", ack.MessageID))
		return
	}
	f := v.(*future.Future[any])

	switch p.opts.Delivery {
	case message.Sync:
		if ok, _ := ack.Result.(bool); ok {
			f.Complete(nil)
		} else {
			f.Fail(&message.FailedError{ProducerID: p.id, MessageID: ack.MessageID})
		}
	case message.RequestReply:
		f.Complete(ack.Result)
	}
}

// Pending returns the number of messages waiting for an Ack.
func (p *Producer) Pending() int {
	n := 0
	p.pending.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close releases the producer id. In-flight futures are not failed; Acks
// arriving for this producer afterwards are unroutable and dropped.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.svc.Registry().Close(p.id)
	return nil
}

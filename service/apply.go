package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zheilbron/atomix/loadbalance"
	"github.com/zheilbron/atomix/message"
	"github.com/zheilbron/atomix/protocol"
	"github.com/zheilbron/atomix/replog"
	"github.com/zheilbron/atomix/serializer"
)

// apply processes one committed entry. Malformed entries are logged and
// skipped. A replica may fail to decode what others decode (a payload type
// it never registered); dispatch picks depend only on the entry itself, so
// later entries still resolve to the same targets everywhere.
func (s *Service) apply(ctx context.Context, e replog.Entry) {
	h, body, err := protocol.Unmarshal(e.Data)
	if err != nil {
		s.logger.Warn("skipping malformed log entry", zap.Uint64("index", e.Index), zap.Error(err))
		return
	}
	c, ok := s.codecs[h.CodecType]
	if !ok {
		s.logger.Warn("skipping log entry with unknown codec", zap.Uint64("index", e.Index), zap.Uint8("codec", h.CodecType))
		return
	}
	cmd, err := c.Decode(body)
	if err != nil {
		s.logger.Warn("skipping undecodable log entry", zap.Uint64("index", e.Index), zap.Error(err))
		return
	}

	switch cmd := cmd.(type) {
	case *message.Message:
		if h.Kind != protocol.KindMessage {
			break
		}
		s.applyMessage(ctx, e.Index, cmd)
		return
	case *message.Ack:
		if h.Kind != protocol.KindAck {
			break
		}
		s.applyAck(cmd)
		return
	}
	s.logger.Warn("skipping log entry with mismatched kind",
		zap.Uint64("index", e.Index), zap.Stringer("kind", h.Kind), zap.String("command", fmt.Sprintf("%T", cmd)))
}

func (s *Service) applyMessage(ctx context.Context, index uint64, msg *message.Message) {
	targets, err := s.targets(index, msg)
	if err != nil {
		// Nobody will answer, so the sending replica answers for them.
		if msg.Source == s.member && msg.ExpectsAck() {
			s.logger.Warn("message has no receiver", zap.Stringer("message", msg), zap.Error(err))
			s.answer(ctx, msg, nil, err)
		}
		return
	}
	for _, target := range targets {
		if target == s.member {
			s.deliver(ctx, msg)
		}
	}
}

// targets resolves the receiving members of msg. The result depends only on
// the entry and the configured members, so all replicas agree on it.
func (s *Service) targets(index uint64, msg *message.Message) ([]string, error) {
	if msg.Member != "" {
		if !s.isMember(msg.Member) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMember, msg.Member)
		}
		return []string{msg.Member}, nil
	}

	if msg.Dispatch == message.Broadcast {
		names := make([]string, len(s.members))
		for i, m := range s.members {
			names[i] = m.Name
		}
		return names, nil
	}

	b, ok := s.balancers[msg.Dispatch]
	if !ok {
		var err error
		if b, err = loadbalance.ForPolicy(msg.Dispatch); err != nil {
			return nil, err
		}
		s.balancers[msg.Dispatch] = b
	}
	m, err := b.Pick(s.members, loadbalance.Key{Index: index, Producer: msg.Producer, MessageID: msg.ID})
	if err != nil {
		return nil, err
	}
	return []string{m.Name}, nil
}

func (s *Service) isMember(name string) bool {
	for _, m := range s.members {
		if m.Name == name {
			return true
		}
	}
	return false
}

// deliver runs the consumer handler on its own goroutine so a slow handler
// never holds up the apply loop.
func (s *Service) deliver(ctx context.Context, msg *message.Message) {
	h := s.handler(msg.Producer)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		if h == nil {
			s.logger.Debug("no handler for message", zap.Stringer("message", msg))
			if msg.Delivery == message.Sync {
				s.sendAck(ctx, message.AckFor(msg, false))
			} else if msg.Delivery == message.RequestReply {
				s.sendAck(ctx, message.AckFor(msg, nil))
			}
			return
		}

		result, err := s.invoke(ctx, h, msg)
		if err != nil {
			s.logger.Debug("handler failed", zap.Stringer("message", msg), zap.Error(err))
		}
		s.answer(ctx, msg, result, err)
	}()
}

func (s *Service) invoke(ctx context.Context, h Handler, msg *message.Message) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", zap.Stringer("message", msg), zap.Any("panic", r))
			result, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, msg)
}

// answer turns a handler outcome into the Ack the delivery policy asks for:
// SYNC acks err == nil, REQUEST_REPLY acks the reply or the error text.
func (s *Service) answer(ctx context.Context, msg *message.Message, result any, err error) {
	switch msg.Delivery {
	case message.Sync:
		s.sendAck(ctx, message.AckFor(msg, err == nil))
	case message.RequestReply:
		if err != nil {
			result = err.Error()
		}
		s.sendAck(ctx, message.AckFor(msg, result))
	}
}

func (s *Service) sendAck(ctx context.Context, ack *message.Ack) {
	f := s.SendAck(ctx, ack)
	// A reply the serializer cannot encode still has to reach the producer.
	if _, done, err := f.TryGet(); done && errors.Is(err, serializer.ErrUnregisteredType) {
		s.logger.Warn("reply type is not registered", zap.Stringer("ack", ack), zap.Error(err))
		f = s.SendAck(ctx, &message.Ack{
			Member:     ack.Member,
			ProducerID: ack.ProducerID,
			Generation: ack.Generation,
			MessageID:  ack.MessageID,
			Result:     err.Error(),
		})
	}
	f.WhenComplete(func(_ uint64, err error) {
		if err != nil {
			s.logger.Warn("ack submission failed", zap.Stringer("ack", ack), zap.Error(err))
		}
	})
}

// applyAck routes an Ack addressed to this member to its producer. Acks
// for closed or unknown producers are dropped.
func (s *Service) applyAck(ack *message.Ack) {
	if ack.Member != s.member {
		return
	}
	h, ok := s.registry.AckRoute(ack.ProducerID, ack.Generation)
	if !ok {
		s.logger.Debug("dropping unroutable ack", zap.Stringer("ack", ack))
		return
	}
	h.OnAck(ack)
}

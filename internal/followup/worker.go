package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ariefcatur/dbs-storefront/internal/cart"
	kafkax "github.com/ariefcatur/dbs-storefront/internal/kafka"
	"github.com/ariefcatur/dbs-storefront/internal/orders"
	"github.com/ariefcatur/dbs-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Topics the worker subscribes to.
var Topics = []string{
	orders.TopicOrderCreated,
	orders.TopicOrderPaid,
	orders.TopicPaymentFailed,
	orders.TopicPaymentUnmatched,
	orders.TopicOrderStatusChanged,
}

// Worker does the post-commit housekeeping that must not block a request:
// emptying carts that became orders, dropping stale status cache entries and
// recording payments nobody could match.
type Worker struct {
	Redis       *redis.Client
	ServiceName string
	Log         *zap.Logger
}

func (w *Worker) log() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}

// HandleMessage is a kafka.Handler. Events are deduplicated by event_id.
func (w *Worker) HandleMessage(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message, commit and move on
		w.log().Error("undecodable envelope", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, w.ServiceName, env.EventID)
	if seen, _ := redisx.Exists(ctx, w.Redis, dkey); seen {
		return nil
	}

	if err := w.apply(ctx, env); err != nil {
		return err
	}
	_ = w.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}

func (w *Worker) apply(ctx context.Context, env orders.Envelope) error {
	log := w.log().With(zap.String("event_type", env.EventType), zap.String("event_id", env.EventID))

	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		if p.CartSession == "" {
			return nil
		}
		if err := cart.NewRedisPersister(w.Redis, p.CartSession, 0).Delete(ctx); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		log.Info("cart cleared", zap.String("order_id", p.OrderID), zap.String("cart_session", p.CartSession))

	case orders.EventOrderPaid:
		p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
		if err != nil {
			return err
		}
		return w.dropStatus(ctx, p.OrderNumber)

	case orders.EventPaymentFailed:
		p, err := kafkax.UnwrapPayload[orders.PaymentFailedPayload](env.Payload)
		if err != nil {
			return err
		}
		return w.dropStatus(ctx, p.OrderNumber)

	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		return w.dropStatus(ctx, p.OrderNumber)

	case orders.EventPaymentUnmatched:
		p, err := kafkax.UnwrapPayload[orders.PaymentUnmatchedPayload](env.Payload)
		if err != nil {
			return err
		}
		if err := w.Redis.HSet(ctx, redisx.KeyUnmatchedPayments, p.Reference, kafkax.MustMarshal(p)).Err(); err != nil {
			return fmt.Errorf("record unmatched payment: %w", err)
		}
		log.Warn("unmatched payment recorded", zap.String("reference", p.Reference), zap.Int64("amount_kobo", p.AmountKobo))
	}
	return nil
}

func (w *Worker) dropStatus(ctx context.Context, orderNumber string) error {
	if orderNumber == "" {
		return nil
	}
	return w.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderNumber)).Err()
}

// Unmatched lists recorded anomalies, newest first.
func Unmatched(ctx context.Context, rdb *redis.Client) ([]orders.PaymentUnmatchedPayload, error) {
	all, err := rdb.HGetAll(ctx, redisx.KeyUnmatchedPayments).Result()
	if err != nil {
		return nil, err
	}
	out := make([]orders.PaymentUnmatchedPayload, 0, len(all))
	for ref, raw := range all {
		p, err := kafkax.UnwrapPayload[orders.PaymentUnmatchedPayload](json.RawMessage(raw))
		if err != nil {
			p = orders.PaymentUnmatchedPayload{Reference: ref}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out, nil
}

// Resolve forgets an anomaly once an operator has dealt with it.
func Resolve(ctx context.Context, rdb *redis.Client, reference string) (bool, error) {
	n, err := rdb.HDel(ctx, redisx.KeyUnmatchedPayments, reference).Result()
	return n > 0, err
}

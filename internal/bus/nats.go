package bus

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const subjectPrefix = "focusfriends.events."

type envelope struct {
	EventID   string          `json:"eventId"`
	Kind      string          `json:"kind"`
	Origin    string          `json:"origin"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Bridge relays bus events between instances over NATS so that a change
// made on one instance reaches dashboards connected to another.
type Bridge struct {
	bus    *Bus
	nc     *nats.Conn
	origin string
	logger *zap.Logger

	sub    *Subscription
	remote *nats.Subscription
	wg     sync.WaitGroup
}

func NewBridge(url string, b *Bus, logger *zap.Logger) (*Bridge, error) {
	opts := []nats.Option{
		nats.Name("focusfriends"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("nats error", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &Bridge{
		bus:    b,
		nc:     nc,
		origin: uuid.NewString(),
		logger: logger,
	}, nil
}

func (br *Bridge) Start() error {
	remote, err := br.nc.Subscribe(subjectPrefix+">", br.handleRemote)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subjectPrefix, err)
	}
	br.remote = remote
	br.sub = br.bus.Subscribe("", 256)

	br.wg.Add(1)
	go func() {
		defer br.wg.Done()
		for evt := range br.sub.Events() {
			if evt.Origin != "" {
				continue
			}
			br.forward(evt)
		}
	}()

	br.logger.Info("nats bridge started", zap.String("origin", br.origin))
	return nil
}

func (br *Bridge) Close() {
	if br.remote != nil {
		_ = br.remote.Unsubscribe()
	}
	if br.sub != nil {
		br.sub.Close()
	}
	br.wg.Wait()
	if err := br.nc.Drain(); err != nil {
		br.logger.Warn("drain nats connection", zap.Error(err))
	}
}

func (br *Bridge) forward(evt Event) {
	data, err := encodeEnvelope(evt, br.origin)
	if err != nil {
		br.logger.Error("encode bus event", zap.String("kind", evt.Kind), zap.Error(err))
		return
	}
	if err := br.nc.Publish(subjectPrefix+evt.Kind, data); err != nil {
		br.logger.Error("publish bus event", zap.String("kind", evt.Kind), zap.Error(err))
	}
}

func (br *Bridge) handleRemote(msg *nats.Msg) {
	evt, err := decodeEnvelope(msg.Data)
	if err != nil {
		br.logger.Warn("drop remote event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if evt.Origin == br.origin {
		return
	}
	br.bus.Publish(evt)
}

func encodeEnvelope(evt Event, origin string) ([]byte, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(envelope{
		EventID:   uuid.NewString(),
		Kind:      evt.Kind,
		Origin:    origin,
		Timestamp: evt.Timestamp,
		Payload:   payload,
	})
}

func decodeEnvelope(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Origin == "" {
		return Event{}, fmt.Errorf("envelope %s has no origin", env.EventID)
	}

	var payload any
	var err error
	switch {
	case env.Kind == KindSessionInserted || env.Kind == KindSessionUpdated:
		payload, err = decodePayload[SessionChange](env.Payload)
	case env.Kind == KindNudgeInserted:
		payload, err = decodePayload[NudgeCreated](env.Payload)
	case env.Kind == KindProfileUpdated:
		payload, err = decodePayload[ProfileChange](env.Payload)
	case env.Kind == KindTimerStatus:
		payload, err = decodePayload[TimerStatusChange](env.Payload)
	case env.Kind == KindTimerCompleted:
		payload, err = decodePayload[TimerCompleted](env.Payload)
	case strings.TrimSpace(env.Kind) == "":
		return Event{}, fmt.Errorf("envelope %s has no kind", env.EventID)
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", env.Kind)
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}

	return Event{
		Kind:      env.Kind,
		Timestamp: env.Timestamp,
		Origin:    env.Origin,
		Payload:   payload,
	}, nil
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var value T
	err := json.Unmarshal(raw, &value)
	return value, err
}

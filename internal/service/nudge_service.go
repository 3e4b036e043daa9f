package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"focusfriends/backend/internal/bus"
	apperrors "focusfriends/backend/internal/errors"
	"focusfriends/backend/internal/logging"
	"focusfriends/backend/internal/model"
	"focusfriends/backend/internal/repository"
)

type sender struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// senderLimiter throttles nudges per sending user. Idle entries expire after
// ttl.
type senderLimiter struct {
	mu      sync.Mutex
	senders map[string]*sender
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	clock   clockwork.Clock
}

func newSenderLimiter(interval time.Duration, burst int, clock clockwork.Clock) *senderLimiter {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	return &senderLimiter{
		senders: make(map[string]*sender),
		limit:   rate.Every(interval),
		burst:   burst,
		ttl:     10 * time.Minute,
		clock:   clock,
	}
}

func (l *senderLimiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, s := range l.senders {
		if now.Sub(s.lastSeen) > l.ttl {
			delete(l.senders, id)
		}
	}
	s, ok := l.senders[key]
	if !ok {
		s = &sender{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.senders[key] = s
	}
	s.lastSeen = now
	return s.limiter.AllowN(now, 1)
}

type NudgeService struct {
	nudges   *repository.NudgeRepository
	profiles *repository.ProfileRepository
	events   *bus.Bus
	clock    clockwork.Clock
	limiter  *senderLimiter
}

func NewNudgeService(
	nudges *repository.NudgeRepository,
	profiles *repository.ProfileRepository,
	events *bus.Bus,
	clock clockwork.Clock,
	interval time.Duration,
	burst int,
) *NudgeService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NudgeService{
		nudges:   nudges,
		profiles: profiles,
		events:   events,
		clock:    clock,
		limiter:  newSenderLimiter(interval, burst, clock),
	}
}

func (s *NudgeService) Send(ctx context.Context, senderID, receiverID, kind string) (*model.NudgeView, *apperrors.APIError) {
	if !model.IsValidNudgeType(kind) {
		return nil, apperrors.BadRequest("invalid_nudge_type", "type must be one of high-five, focus-up, coffee-break")
	}
	if receiverID == "" {
		return nil, apperrors.BadRequest("invalid_receiver", "receiverId is required")
	}
	if receiverID == senderID {
		return nil, apperrors.BadRequest("invalid_receiver", "you cannot nudge yourself")
	}

	receiver, err := s.profiles.GetByID(ctx, receiverID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("receiver_not_found", "receiver not found")
	}
	if err != nil {
		return nil, s.backendError(ctx, err, "failed to load receiver")
	}
	senderProfile, err := s.profiles.GetByID(ctx, senderID)
	if err != nil {
		return nil, s.backendError(ctx, err, "failed to load sender")
	}

	if !s.limiter.Allow(senderID) {
		return nil, apperrors.TooManyRequests("slow down, you are sending nudges too quickly")
	}

	nudge := model.Nudge{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Type:       kind,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.nudges.Insert(ctx, &nudge); err != nil {
		return nil, s.backendError(ctx, err, "failed to send nudge")
	}

	view := model.NudgeView{
		Nudge:            nudge,
		SenderUsername:   senderProfile.Username,
		ReceiverUsername: receiver.Username,
	}
	s.events.Publish(bus.Event{
		Kind:    bus.KindNudgeInserted,
		Payload: bus.NudgeCreated{Nudge: view},
	})
	return &view, nil
}

func (s *NudgeService) backendError(ctx context.Context, err error, message string) *apperrors.APIError {
	if IsUnavailable(err) {
		logging.FromContext(ctx).Warn("nudge backend unavailable", zap.Error(err))
		return apperrors.ServiceUnavailable("nudges are unavailable, please try again")
	}
	logging.FromContext(ctx).Error(message, zap.Error(err))
	return apperrors.Internal(message)
}

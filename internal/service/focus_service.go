package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"focusfriends/backend/internal/bus"
	apperrors "focusfriends/backend/internal/errors"
	"focusfriends/backend/internal/model"
	"focusfriends/backend/internal/repository"
	"focusfriends/backend/internal/retry"
	"focusfriends/backend/internal/timer"
)

type FocusOptions struct {
	Clock           clockwork.Clock
	TickInterval    time.Duration
	DefaultDuration time.Duration
	Retry           retry.Policy
	Logger          *zap.Logger
}

// FocusService owns one timer controller per user and records the sessions
// they produce.
type FocusService struct {
	sessions *repository.SessionRepository
	profiles *repository.ProfileRepository
	prefs    *repository.PreferenceRepository
	events   *bus.Bus
	opts     FocusOptions
	logger   *zap.Logger

	mu          sync.Mutex
	controllers map[string]*timer.Controller
	closed      bool
}

func NewFocusService(
	sessions *repository.SessionRepository,
	profiles *repository.ProfileRepository,
	prefs *repository.PreferenceRepository,
	events *bus.Bus,
	opts FocusOptions,
) *FocusService {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &FocusService{
		sessions:    sessions,
		profiles:    profiles,
		prefs:       prefs,
		events:      events,
		opts:        opts,
		logger:      opts.Logger.Named("focus"),
		controllers: make(map[string]*timer.Controller),
	}
}

func (s *FocusService) GetState(ctx context.Context, userID string) (*model.TimerState, *apperrors.APIError) {
	controller, apiErr := s.controller(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	state := controller.Snapshot()
	return &state, nil
}

func (s *FocusService) Start(ctx context.Context, userID, subject string) (*model.TimerState, *apperrors.APIError) {
	controller, apiErr := s.controller(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	state, err := controller.Start(subject)
	if err != nil {
		return nil, timerError(err, state)
	}
	return &state, nil
}

func (s *FocusService) Pause(ctx context.Context, userID string) (*model.TimerState, *apperrors.APIError) {
	controller, apiErr := s.controller(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	state, err := controller.Pause()
	if err != nil {
		return nil, timerError(err, state)
	}
	return &state, nil
}

func (s *FocusService) Resume(ctx context.Context, userID string) (*model.TimerState, *apperrors.APIError) {
	controller, apiErr := s.controller(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	state, err := controller.Resume()
	if err != nil {
		return nil, timerError(err, state)
	}
	return &state, nil
}

func (s *FocusService) Stop(ctx context.Context, userID string) (*model.TimerState, *apperrors.APIError) {
	controller, apiErr := s.controller(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	state := controller.Stop()
	return &state, nil
}

func (s *FocusService) SetDuration(ctx context.Context, userID string, seconds int) (*model.TimerState, *apperrors.APIError) {
	controller, apiErr := s.controller(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	state, err := controller.SetDuration(seconds)
	if err != nil {
		return nil, timerError(err, state)
	}
	return &state, nil
}

func (s *FocusService) History(ctx context.Context, userID string, limit int) ([]model.Session, *apperrors.APIError) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	sessions, err := s.sessions.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, s.backendError(err, "failed to load session history")
	}
	return sessions, nil
}

// Close stops every controller and waits for their backend writes until ctx
// is done.
func (s *FocusService) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	controllers := make([]*timer.Controller, 0, len(s.controllers))
	for _, controller := range s.controllers {
		controllers = append(controllers, controller)
	}
	s.mu.Unlock()

	var errs []error
	for _, controller := range controllers {
		if err := controller.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CreateSession implements timer.SessionBackend.
func (s *FocusService) CreateSession(ctx context.Context, userID, subject string, startedAt time.Time) (string, error) {
	now := s.opts.Clock.Now().UTC()
	session := model.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		Subject:     subject,
		StartTime:   startedAt,
		IsPublicNow: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.sessions.Insert(ctx, &session); err != nil {
		return "", err
	}

	// Once the row is inserted the call must succeed, or a retry inserts a
	// second row.
	var username string
	profile, err := s.profiles.UpdateStatus(ctx, userID, string(model.PresenceFocusing), now)
	if err != nil {
		s.logger.Warn("mark profile focusing", zap.String("user_id", userID), zap.Error(err))
		if current, getErr := s.profiles.GetByID(ctx, userID); getErr == nil {
			username = current.Username
		}
	} else {
		username = profile.Username
	}

	s.events.Publish(bus.Event{
		Kind:    bus.KindSessionInserted,
		Payload: bus.SessionChange{Session: session, Username: username},
	})
	if profile != nil {
		s.events.Publish(bus.Event{
			Kind:    bus.KindProfileUpdated,
			Payload: bus.ProfileChange{Profile: *profile},
		})
	}
	return session.ID, nil
}

// EndSession implements timer.SessionBackend. The session row and the
// profile's hours are updated in one transaction.
func (s *FocusService) EndSession(ctx context.Context, userID, sessionID string, endedAt time.Time) error {
	tx, err := s.sessions.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	session, err := s.sessions.GetByIDTx(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if session.EndTime != nil {
		return nil
	}

	minutes := model.DurationMinutes(session.StartTime, endedAt)
	session.EndTime = &endedAt
	session.DurationMinutes = &minutes
	session.UpdatedAt = endedAt
	if err := s.sessions.EndTx(ctx, tx, session); err != nil {
		return err
	}

	profile, err := s.profiles.CompleteSessionTx(ctx, tx, userID, float64(minutes)/60, endedAt)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.events.Publish(bus.Event{
		Kind:    bus.KindSessionUpdated,
		Payload: bus.SessionChange{Session: *session, Username: profile.Username},
	})
	s.events.Publish(bus.Event{
		Kind:    bus.KindProfileUpdated,
		Payload: bus.ProfileChange{Profile: *profile},
	})
	return nil
}

func (s *FocusService) controller(ctx context.Context, userID string) (*timer.Controller, *apperrors.APIError) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperrors.ServiceUnavailable("server is shutting down")
	}
	if controller, ok := s.controllers[userID]; ok {
		s.mu.Unlock()
		return controller, nil
	}
	s.mu.Unlock()

	prefs, err := s.prefs.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		prefs = &model.TimerPreferences{
			UserID:          userID,
			DurationSeconds: int(s.opts.DefaultDuration / time.Second),
			RecentSubjects:  append([]string(nil), model.DefaultRecentSubjects...),
		}
	} else if err != nil {
		return nil, s.backendError(err, "failed to load timer preferences")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.ServiceUnavailable("server is shutting down")
	}
	if controller, ok := s.controllers[userID]; ok {
		return controller, nil
	}

	store := timer.NewStore(s.opts.Clock, *prefs)
	controller := timer.NewController(userID, store, timer.ControllerOptions{
		Clock:        s.opts.Clock,
		Backend:      s,
		Retry:        s.opts.Retry,
		TickInterval: s.opts.TickInterval,
		Logger:       s.logger,
		Hooks: timer.Hooks{
			OnStatusChange: func(state model.TimerState) { s.publishStatus(userID, state) },
			OnPreferences:  s.savePreferences,
			OnComplete:     s.publishCompletion,
		},
	})
	s.controllers[userID] = controller
	return controller, nil
}

func (s *FocusService) publishStatus(userID string, state model.TimerState) {
	change := bus.TimerStatusChange{UserID: userID, Status: state.Status}
	if state.Status != model.TimerIdle {
		subject := state.Subject
		change.Subject = &subject
		change.StartedAt = state.StartedAt
	}
	s.events.Publish(bus.Event{Kind: bus.KindTimerStatus, Payload: change})
}

func (s *FocusService) savePreferences(prefs model.TimerPreferences) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.prefs.Upsert(ctx, &prefs); err != nil {
		s.logger.Warn("save timer preferences", zap.String("user_id", prefs.UserID), zap.Error(err))
	}
}

func (s *FocusService) publishCompletion(done timer.Completion) {
	s.events.Publish(bus.Event{
		Kind: bus.KindTimerCompleted,
		Payload: bus.TimerCompleted{
			UserID:  done.UserID,
			Subject: done.Subject,
			Minutes: model.DurationMinutes(done.StartedAt, done.EndedAt),
		},
	})
}

func (s *FocusService) backendError(err error, message string) *apperrors.APIError {
	if IsUnavailable(err) {
		s.logger.Warn("focus backend unavailable", zap.Error(err))
		return apperrors.ServiceUnavailable("focus service is unavailable, please try again")
	}
	s.logger.Error(message, zap.Error(err))
	return apperrors.Internal(message)
}

func timerError(err error, state model.TimerState) *apperrors.APIError {
	switch {
	case errors.Is(err, timer.ErrSessionActive):
		return apperrors.Conflict("session_active", err.Error(), map[string]interface{}{"state": state})
	case errors.Is(err, timer.ErrInvalidTransition):
		return apperrors.Conflict("invalid_transition", err.Error(), map[string]interface{}{"state": state})
	case errors.Is(err, timer.ErrInvalidDuration):
		return apperrors.BadRequest("invalid_duration", err.Error())
	case errors.Is(err, timer.ErrClosed):
		return apperrors.ServiceUnavailable("server is shutting down")
	default:
		return apperrors.Internal("timer update failed")
	}
}

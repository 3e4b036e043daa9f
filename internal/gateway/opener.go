package gateway

import (
	"context"
	"fmt"

	"focusfriends/backend/internal/dashboard"
	"focusfriends/backend/internal/repository"
	"focusfriends/backend/internal/service"
)

// DashboardOpener opens a live dashboard for each connection, seeded with
// the user's profile name and current timer state.
func DashboardOpener(
	deps dashboard.Deps,
	base dashboard.Options,
	profiles *repository.ProfileRepository,
	focus *service.FocusService,
) Opener {
	return func(ctx context.Context, userID string, sink dashboard.Sink) (Session, error) {
		profile, err := profiles.GetByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}
		state, apiErr := focus.GetState(ctx, userID)
		if apiErr != nil {
			return nil, fmt.Errorf("load timer state: %w", apiErr)
		}

		opts := base
		opts.UserID = userID
		opts.Username = profile.Username
		opts.Timer = *state
		d, err := dashboard.Open(ctx, deps, opts, sink)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

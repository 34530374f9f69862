package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// IdentityService turns the caller identity asserted by the upstream gateway
// into a Principal using the user directory.
type IdentityService struct {
	users  UserDirectory
	cache  *principalCache
	logger *slog.Logger
}

// NewIdentityService constructs an identity service. A non-positive ttl uses
// the default cache lifetime.
func NewIdentityService(users UserDirectory, ttl time.Duration, now func() time.Time) *IdentityService {
	return NewIdentityServiceWithLogger(users, ttl, now, nil)
}

// NewIdentityServiceWithLogger constructs an identity service with a specified logger.
func NewIdentityServiceWithLogger(users UserDirectory, ttl time.Duration, now func() time.Time, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		users:  users,
		cache:  newPrincipalCache(ttl, 0, now),
		logger: defaultLogger(logger),
	}
}

// ResolvePrincipal returns the principal for userID or ErrUnauthenticated
// when the directory does not know the user.
func (s *IdentityService) ResolvePrincipal(ctx context.Context, userID string) (Principal, error) {
	if s == nil || s.users == nil {
		return Principal{}, fmt.Errorf("identity service not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Principal{}, ErrUnauthenticated
	}
	if p, ok := s.cache.Get(userID); ok {
		return p, nil
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		mapped := mapRepoError(err)
		if errors.Is(mapped, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		serviceLogger(ctx, s.logger, "IdentityService", "ResolvePrincipal", "user_id", userID).
			ErrorContext(ctx, "failed to resolve principal", "error", mapped, "error_kind", ErrorKind(mapped))
		return Principal{}, mapped
	}

	p := Principal{UserID: user.ID, Role: user.Role}
	s.cache.Store(p)
	return p, nil
}

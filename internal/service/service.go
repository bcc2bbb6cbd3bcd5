package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"restopos/backend/internal/cache"
	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

// ErrForbidden is returned when the actor in the context lacks the role an
// operation needs.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Notifier receives order events after their unit of work has committed.
// Implementations must not block and must not fail the caller.
type Notifier interface {
	Notify(ctx context.Context, userID int64, message string, link string)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, int64, string, string) {}

type Service struct {
	repo     store.Repository
	notifier Notifier
	logger   *zap.Logger
	currency string
	validate *validator.Validate
	now      func() time.Time

	summaries  cache.SummaryCache
	summaryTTL time.Duration
}

func New(repo store.Repository, notifier Notifier, logger *zap.Logger, currency string) *Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = "IDR"
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		currency: strings.ToUpper(currency),
		validate: validate,
		now:      func() time.Time { return time.Now().UTC() },

		summaries:  cache.NoopSummaryCache{},
		summaryTTL: 10 * time.Minute,
	}
}

// SetSummaryCache installs the read-through cache for saved daily summaries.
func (s *Service) SetSummaryCache(c cache.SummaryCache, ttl time.Duration) {
	if c == nil {
		c = cache.NoopSummaryCache{}
	}
	s.summaries = c
	if ttl > 0 {
		s.summaryTTL = ttl
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, invalidf("date must be YYYY-MM-DD")
		}
		from = parsed.UTC()
	}
	return s.repo.ListAuditLogs(ctx, from, from.Add(24*time.Hour), limit)
}

// ListNotifications returns the newest notifications for userID. Customers
// only ever see their own.
func (s *Service) ListNotifications(ctx context.Context, userID int64, limit int) ([]domain.Notification, error) {
	if actor, ok := ActorFromContext(ctx); ok && actor.Role == domain.RoleCustomer {
		if actor.CustomerID == nil {
			return nil, ErrForbidden
		}
		userID = *actor.CustomerID
	}
	if userID < 1 {
		return nil, invalidf("user_id required")
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListNotifications(ctx, userID, limit)
}

func (s *Service) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return invalidf("%s required", fe.Field())
		case "oneof":
			return invalidf("%s must be one of: %s", fe.Field(), fe.Param())
		default:
			return invalidf("%s failed %s validation", fe.Field(), fe.Tag())
		}
	}
	return invalidf("%v", err)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	if err := s.repo.CreateAuditLog(ctx, s.auditEntry(ctx, action, entityType, entityID, detail)); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

func (s *Service) auditEntry(ctx context.Context, action string, entityType string, entityID string, detail string) domain.AuditLog {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	return domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}
}

func requireRole(ctx context.Context, roles ...string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrForbidden
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return ErrForbidden
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

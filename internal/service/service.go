package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"kiosco/backend/internal/barcode"
	"kiosco/backend/internal/cache"
	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/lock"
	"kiosco/backend/internal/store"
	"kiosco/backend/internal/xid"
)

const shiftLockKey = "lock:shift"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// BarcodeCatalog resolves barcodes that are not in the local catalog.
type BarcodeCatalog interface {
	Lookup(ctx context.Context, code string) (barcode.Result, error)
}

// Deps carries the optional collaborators of a Service. Zero values fall
// back to in-process implementations.
type Deps struct {
	Locker          lock.Locker
	Barcodes        BarcodeCatalog
	BarcodeCache    cache.BarcodeCache
	Logger          *logrus.Logger
	ShiftLockTTL    time.Duration
	BarcodeCacheTTL time.Duration
}

type Service struct {
	repo            store.Repository
	locker          lock.Locker
	barcodes        BarcodeCatalog
	barcodeCache    cache.BarcodeCache
	logger          *logrus.Entry
	shiftLockTTL    time.Duration
	barcodeCacheTTL time.Duration
	now             func() time.Time
}

func New(repo store.Repository, deps Deps) *Service {
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.BarcodeCache == nil {
		deps.BarcodeCache = cache.NoopBarcodeCache{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.ShiftLockTTL <= 0 {
		deps.ShiftLockTTL = 15 * time.Second
	}
	if deps.BarcodeCacheTTL <= 0 {
		deps.BarcodeCacheTTL = 24 * time.Hour
	}

	return &Service{
		repo:            repo,
		locker:          deps.Locker,
		barcodes:        deps.Barcodes,
		barcodeCache:    deps.BarcodeCache,
		logger:          deps.Logger.WithField("component", "service"),
		shiftLockTTL:    deps.ShiftLockTTL,
		barcodeCacheTTL: deps.BarcodeCacheTTL,
		now:             time.Now,
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.IsAdmin() {
		return domain.Actor{}, ErrAdminRequired
	}
	return actor, nil
}

// withShiftLock runs fn while holding the shift lifecycle lock. When the
// lock backend itself fails, fn still runs: the store constraints remain the
// final guard.
func (s *Service) withShiftLock(ctx context.Context, op string, fn func() error) error {
	held, err := s.locker.Obtain(ctx, shiftLockKey, s.shiftLockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		return ErrOperationInProgress
	}
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"operation": op,
			"error":     err.Error(),
		}).Warn("shift lock unavailable; proceeding without lock")
		return fn()
	}
	defer func() {
		if err := held.Release(ctx); err != nil {
			s.logger.WithField("operation", op).WithError(err).Warn("failed to release shift lock")
		}
	}()
	return fn()
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: domain.ActorSystem, Role: domain.ActorSystem}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.WithFields(logrus.Fields{
			"action": action,
			"entity": fmt.Sprintf("%s/%s", entityType, entityID),
		}).WithError(err).Warn("failed to write audit log")
	}
}

// ListAuditLogs returns the audit entries of one UTC day, newest first.
// An empty date means the last 24 hours.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if date == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, invalidInput("date", err)
		}
		from = parsed.UTC()
	}
	return s.repo.ListAuditLogs(ctx, from, from.Add(24*time.Hour), limit)
}

package zones

import (
	"context"
	"maps"
	"sync"

	"distline/internal/domain"
	"distline/internal/engine/auth"
	derrors "distline/internal/errors"
	"distline/internal/logger"
)

// Store is the write surface the manager needs. engine.Engine satisfies it.
type Store interface {
	ListSchedules(ctx context.Context) ([]domain.Schedule, error)
	GetSchedule(ctx context.Context, id int64) (domain.Schedule, error)
	MoveItem(ctx context.Context, actor domain.Actor, ref domain.ItemRef, scheduleID *int64) (domain.Item, error)
	ResetSchedule(ctx context.Context, actor domain.Actor, scheduleID int64) error
	SetPinned(ctx context.Context, actor domain.Actor, scheduleID int64, pinned bool) (domain.Schedule, error)
}

// Manager holds the zone mapping of one board session. The mapping is only
// changed by Refresh, never optimistically.
type Manager struct {
	store Store
	size  int
	log   *logger.Logger

	// refreshMu orders whole refreshes so an older read is never applied
	// after a newer one.
	refreshMu sync.Mutex
	mu        sync.Mutex
	mapping   Mapping
	schedules map[int64]domain.Schedule
}

func NewManager(store Store, size int, log *logger.Logger) *Manager {
	if size <= 0 {
		size = DefaultSize
	}
	return &Manager{store: store, size: size, log: log, mapping: Mapping{}, schedules: map[int64]domain.Schedule{}}
}

// Mapping returns a copy of the current mapping.
func (m *Manager) Mapping() Mapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mapping.Clone()
}

// Refresh re-reads schedules and reconciles the mapping.
func (m *Manager) Refresh(ctx context.Context) ([]Zone, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	schedules, err := m.store.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.mapping
	m.mapping = Reconcile(prev, Live(schedules), m.size)
	m.schedules = make(map[int64]domain.Schedule, len(schedules))
	for _, s := range schedules {
		m.schedules[s.ID] = s
	}
	if m.log != nil && !maps.Equal(prev, m.mapping) {
		m.log.Info(m.log.WithFields(ctx, map[string]any{"bound_before": len(prev), "bound_after": len(m.mapping)}), "zone mapping changed")
	}
	return Order(m.mapping, schedules, m.size), nil
}

// bound resolves a zone to its schedule, rejecting unbound, out of range and
// produced targets.
func (m *Manager) bound(zone int) (domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if zone < 1 || zone > m.size {
		return domain.Schedule{}, derrors.ErrZoneOutOfRange.WithDetails(map[string]any{"zone": zone, "size": m.size})
	}
	id, ok := m.mapping[zone]
	if !ok {
		return domain.Schedule{}, derrors.ErrNoDestination.WithDetails(map[string]any{"zone": zone})
	}
	s, ok := m.schedules[id]
	if !ok {
		return domain.Schedule{}, derrors.ErrNoDestination.WithDetails(map[string]any{"zone": zone})
	}
	if s.Produced() {
		return domain.Schedule{}, derrors.ErrAlreadyProduced.WithDetails(map[string]any{"schedule_id": id})
	}
	return s, nil
}

// DropItem assigns an item to the schedule bound to zone.
func (m *Manager) DropItem(ctx context.Context, actor domain.Actor, ref domain.ItemRef, zone int) ([]Zone, error) {
	if err := auth.Require(actor, auth.PermZoneAssign); err != nil {
		return nil, err
	}
	s, err := m.bound(zone)
	if err != nil {
		return nil, err
	}
	if _, err := m.store.MoveItem(ctx, actor, ref, &s.ID); err != nil {
		return nil, err
	}
	return m.Refresh(ctx)
}

// ResetZone clears the schedule bound to zone and deletes it.
func (m *Manager) ResetZone(ctx context.Context, actor domain.Actor, zone int) ([]Zone, error) {
	if err := auth.Require(actor, auth.PermZoneAssign); err != nil {
		return nil, err
	}
	s, err := m.bound(zone)
	if err != nil {
		return nil, err
	}
	if err := m.store.ResetSchedule(ctx, actor, s.ID); err != nil {
		return nil, err
	}
	return m.Refresh(ctx)
}

// TogglePin flips the pinned flag of the schedule bound to zone. The current
// flag is read from the store, not from the last refresh.
func (m *Manager) TogglePin(ctx context.Context, actor domain.Actor, zone int) ([]Zone, error) {
	if err := auth.Require(actor, auth.PermZoneAssign); err != nil {
		return nil, err
	}
	s, err := m.bound(zone)
	if err != nil {
		return nil, err
	}
	current, err := m.store.GetSchedule(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	if _, err := m.store.SetPinned(ctx, actor, s.ID, !current.Pinned); err != nil {
		return nil, err
	}
	return m.Refresh(ctx)
}

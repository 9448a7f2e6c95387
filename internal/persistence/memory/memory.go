// Package memory provides an in-process implementation of the persistence contracts.
// It enforces the same overlap and version rules as the SQL backends under one mutex.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
	"github.com/example/appointment-engine/internal/scheduler"
)

type overrideKey struct {
	technicianID string
	serviceID    string
}

type scheduleKey struct {
	technicianID string
	weekday      time.Weekday
}

// Storage is a mutex-guarded in-memory store.
type Storage struct {
	mu           sync.RWMutex
	appointments map[string]domain.Appointment
	technicians  map[string]domain.Technician
	schedules    map[scheduleKey]domain.WorkingSchedule
	services     map[string]domain.Service
	overrides    map[overrideKey]int
	blocks       map[string]domain.Block
	clients      map[string]domain.Client
	now          func() time.Time
}

var _ persistence.Store = (*Storage)(nil)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		appointments: make(map[string]domain.Appointment),
		technicians:  make(map[string]domain.Technician),
		schedules:    make(map[scheduleKey]domain.WorkingSchedule),
		services:     make(map[string]domain.Service),
		overrides:    make(map[overrideKey]int),
		blocks:       make(map[string]domain.Block),
		clients:      make(map[string]domain.Client),
		now:          time.Now,
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// --- AppointmentRepository implementation ---

// FetchActiveAppointments returns blocking appointments of the technician overlapping [from, to).
func (s *Storage) FetchActiveAppointments(_ context.Context, technicianID string, from, to time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := scheduler.Interval{Start: from, End: to}
	var appointments []domain.Appointment
	for _, appointment := range s.appointments {
		if appointment.TechnicianID != technicianID || !appointment.Status.Blocking() {
			continue
		}
		if window.Overlaps(scheduler.Interval{Start: appointment.Start, End: appointment.End}) {
			appointments = append(appointments, appointment)
		}
	}
	sort.Slice(appointments, func(i, j int) bool {
		if appointments[i].Start.Equal(appointments[j].Start) {
			return appointments[i].ID < appointments[j].ID
		}
		return appointments[i].Start.Before(appointments[j].Start)
	})
	return appointments, nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Storage) GetAppointment(_ context.Context, id string) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appointment, ok := s.appointments[id]
	if !ok {
		return domain.Appointment{}, persistence.ErrNotFound
	}
	return appointment, nil
}

// InsertAppointment stores a new appointment at version 1.
func (s *Storage) InsertAppointment(_ context.Context, appointment domain.Appointment) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if appointment.ID == "" {
		return domain.Appointment{}, persistence.ErrConstraintViolation
	}
	if _, ok := s.appointments[appointment.ID]; ok {
		return domain.Appointment{}, persistence.ErrDuplicate
	}
	if err := s.checkExclusionLocked(appointment); err != nil {
		return domain.Appointment{}, err
	}

	now := s.now().UTC()
	appointment.Version = 1
	appointment.CreatedAt = now
	appointment.UpdatedAt = now
	s.appointments[appointment.ID] = appointment
	return appointment, nil
}

// UpdateAppointment replaces the appointment when its version equals expectedVersion.
func (s *Storage) UpdateAppointment(_ context.Context, appointment domain.Appointment, expectedVersion int64) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.appointments[appointment.ID]
	if !ok {
		return domain.Appointment{}, persistence.ErrNotFound
	}
	if existing.Version != expectedVersion {
		return domain.Appointment{}, fmt.Errorf("%w: appointment %s is at version %d, expected %d",
			persistence.ErrVersionMismatch, appointment.ID, existing.Version, expectedVersion)
	}
	if err := s.checkExclusionLocked(appointment); err != nil {
		return domain.Appointment{}, err
	}

	appointment.Version = existing.Version + 1
	appointment.CreatedAt = existing.CreatedAt
	appointment.UpdatedAt = s.now().UTC()
	s.appointments[appointment.ID] = appointment
	return appointment, nil
}

func (s *Storage) checkExclusionLocked(candidate domain.Appointment) error {
	if !candidate.End.After(candidate.Start) {
		return persistence.ErrConstraintViolation
	}
	if !candidate.Status.Blocking() {
		return nil
	}
	span := scheduler.Interval{Start: candidate.Start, End: candidate.End}
	for id, other := range s.appointments {
		if id == candidate.ID || other.TechnicianID != candidate.TechnicianID || !other.Status.Blocking() {
			continue
		}
		if span.Overlaps(scheduler.Interval{Start: other.Start, End: other.End}) {
			return fmt.Errorf("%w: overlaps appointment %s", persistence.ErrExclusionViolation, id)
		}
	}
	return nil
}

// --- ScheduleRepository implementation ---

// SaveTechnician inserts or replaces a technician.
func (s *Storage) SaveTechnician(_ context.Context, technician domain.Technician) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if technician.ID == "" {
		return persistence.ErrConstraintViolation
	}
	s.technicians[technician.ID] = technician
	return nil
}

// GetTechnician retrieves a technician by ID.
func (s *Storage) GetTechnician(_ context.Context, id string) (domain.Technician, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	technician, ok := s.technicians[id]
	if !ok {
		return domain.Technician{}, persistence.ErrNotFound
	}
	return technician, nil
}

// ListTechnicians returns the technicians of a location ordered by ID.
func (s *Storage) ListTechnicians(_ context.Context, locationID string) ([]domain.Technician, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var technicians []domain.Technician
	for _, technician := range s.technicians {
		if technician.LocationID == locationID {
			technicians = append(technicians, technician)
		}
	}
	sort.Slice(technicians, func(i, j int) bool { return technicians[i].ID < technicians[j].ID })
	return technicians, nil
}

// SaveWorkingSchedule inserts or replaces the schedule for one weekday.
func (s *Storage) SaveWorkingSchedule(_ context.Context, schedule domain.WorkingSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.technicians[schedule.TechnicianID]; !ok {
		return persistence.ErrConstraintViolation
	}
	s.schedules[scheduleKey{schedule.TechnicianID, schedule.DayOfWeek}] = schedule
	return nil
}

// FetchWorkingSchedule returns the schedule row for weekday, or nil when there is none.
func (s *Storage) FetchWorkingSchedule(_ context.Context, technicianID string, weekday time.Weekday) (*domain.WorkingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.schedules[scheduleKey{technicianID, weekday}]
	if !ok {
		return nil, nil
	}
	return &schedule, nil
}

// SaveService inserts or replaces a service.
func (s *Storage) SaveService(_ context.Context, service domain.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if service.ID == "" || service.DurationMinutes <= 0 || service.BufferMinutes < 0 {
		return persistence.ErrConstraintViolation
	}
	s.services[service.ID] = service
	return nil
}

// FetchService retrieves a service by ID.
func (s *Storage) FetchService(_ context.Context, id string) (domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	service, ok := s.services[id]
	if !ok {
		return domain.Service{}, persistence.ErrNotFound
	}
	return service, nil
}

// SaveServiceOverride sets the technician-specific duration of a service.
func (s *Storage) SaveServiceOverride(_ context.Context, technicianID, serviceID string, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if minutes <= 0 {
		return persistence.ErrConstraintViolation
	}
	s.overrides[overrideKey{technicianID, serviceID}] = minutes
	return nil
}

// FetchServiceOverrideDuration returns the override in minutes, or nil when the default applies.
func (s *Storage) FetchServiceOverrideDuration(_ context.Context, technicianID, serviceID string) (*int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	minutes, ok := s.overrides[overrideKey{technicianID, serviceID}]
	if !ok {
		return nil, nil
	}
	return &minutes, nil
}

// --- BlockRepository implementation ---

// SaveBlock inserts or replaces a block.
func (s *Storage) SaveBlock(_ context.Context, block domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveBlockLocked(block)
}

func (s *Storage) saveBlockLocked(block domain.Block) error {
	if block.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if err := block.Validate(); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	now := s.now().UTC()
	if existing, ok := s.blocks[block.ID]; ok {
		block.CreatedAt = existing.CreatedAt
	} else if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}
	block.UpdatedAt = now
	s.blocks[block.ID] = cloneBlock(block)
	return nil
}

// GetBlock retrieves a block by ID.
func (s *Storage) GetBlock(_ context.Context, id string) (domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, ok := s.blocks[id]
	if !ok {
		return domain.Block{}, persistence.ErrNotFound
	}
	return cloneBlock(block), nil
}

// FetchActiveBlocks returns the technician's active single blocks and series.
func (s *Storage) FetchActiveBlocks(_ context.Context, technicianID string) ([]domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blocks []domain.Block
	for _, block := range s.blocks {
		if block.TechnicianID == technicianID && block.IsActive && !block.IsOverride() {
			blocks = append(blocks, cloneBlock(block))
		}
	}
	sortBlocks(blocks)
	return blocks, nil
}

// FetchModifiedInstances returns override rows of a series overlapping [from, to).
func (s *Storage) FetchModifiedInstances(_ context.Context, seriesID string, from, to time.Time) ([]domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := scheduler.Interval{Start: from, End: to}
	var blocks []domain.Block
	for _, block := range s.blocks {
		if !block.IsOverride() || *block.ParentBlockID != seriesID {
			continue
		}
		if window.Overlaps(scheduler.Interval{Start: block.Start, End: block.End}) {
			blocks = append(blocks, cloneBlock(block))
		}
	}
	sortBlocks(blocks)
	return blocks, nil
}

// DeleteBlockInstance marks the series instance on date as deleted.
func (s *Storage) DeleteBlockInstance(_ context.Context, seriesID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, err := s.seriesLocked(seriesID, date)
	if err != nil {
		return err
	}
	s.dropOverridesLocked(series, date)
	series.Exceptions = append(withoutDate(series.Exceptions, date), domain.BlockException{Date: date, Type: domain.ExceptionDeleted})
	return s.saveBlockLocked(series)
}

// ModifyBlockInstance stores override as the replacement for the series instance on date.
func (s *Storage) ModifyBlockInstance(_ context.Context, seriesID, date string, override domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, err := s.seriesLocked(seriesID, date)
	if err != nil {
		return err
	}
	parent := series.ID
	override.ParentBlockID = &parent
	override.RecurrenceRule = ""
	override.Exceptions = nil
	if override.TechnicianID == "" {
		override.TechnicianID = series.TechnicianID
	}
	if override.Type == "" {
		override.Type = series.Type
	}
	if override.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if err := override.Validate(); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}

	s.dropOverridesLocked(series, date)
	if err := s.saveBlockLocked(override); err != nil {
		return err
	}
	overrideID := override.ID
	series.Exceptions = append(withoutDate(series.Exceptions, date), domain.BlockException{
		Date:            date,
		Type:            domain.ExceptionModified,
		ModifiedBlockID: &overrideID,
	})
	return s.saveBlockLocked(series)
}

func (s *Storage) seriesLocked(seriesID, date string) (domain.Block, error) {
	if _, err := time.Parse(domain.ExceptionDateLayout, date); err != nil {
		return domain.Block{}, fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, domain.ErrExceptionDate)
	}
	series, ok := s.blocks[seriesID]
	if !ok {
		return domain.Block{}, persistence.ErrNotFound
	}
	if !series.IsRecurring() {
		return domain.Block{}, fmt.Errorf("%w: block %s is not a recurring series", persistence.ErrConstraintViolation, seriesID)
	}
	return cloneBlock(series), nil
}

func (s *Storage) dropOverridesLocked(series domain.Block, date string) {
	for _, exc := range series.Exceptions {
		if exc.Date == date && exc.ModifiedBlockID != nil {
			delete(s.blocks, *exc.ModifiedBlockID)
		}
	}
}

// --- ClientRepository implementation ---

// SaveClient inserts or replaces a client.
func (s *Storage) SaveClient(_ context.Context, client domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client.ID == "" {
		return persistence.ErrConstraintViolation
	}
	s.clients[client.ID] = client
	return nil
}

// GetClient retrieves a client by ID.
func (s *Storage) GetClient(_ context.Context, id string) (domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return domain.Client{}, persistence.ErrNotFound
	}
	return client, nil
}

func cloneBlock(block domain.Block) domain.Block {
	clone := block
	if block.ParentBlockID != nil {
		parent := *block.ParentBlockID
		clone.ParentBlockID = &parent
	}
	if block.Exceptions != nil {
		clone.Exceptions = make([]domain.BlockException, len(block.Exceptions))
		for i, exc := range block.Exceptions {
			clone.Exceptions[i] = exc
			if exc.ModifiedBlockID != nil {
				id := *exc.ModifiedBlockID
				clone.Exceptions[i].ModifiedBlockID = &id
			}
		}
	}
	return clone
}

func sortBlocks(blocks []domain.Block) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Start.Equal(blocks[j].Start) {
			return blocks[i].ID < blocks[j].ID
		}
		return blocks[i].Start.Before(blocks[j].Start)
	})
}

func withoutDate(exceptions []domain.BlockException, date string) []domain.BlockException {
	return slices.DeleteFunc(slices.Clone(exceptions), func(exc domain.BlockException) bool {
		return exc.Date == date
	})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"parkgate/internal/fee"
	"parkgate/internal/gate"
	"parkgate/internal/match"
	"parkgate/internal/models"
	"parkgate/internal/redisstore"
	"parkgate/internal/repository"
)

// DefaultZone is used when a caller does not name a zone.
const DefaultZone = "A"

// Denial reasons surfaced in results.
const (
	ReasonCapacityExceeded = "capacity_exceeded"
	ReasonNotFound         = "not_found"
	ReasonPaymentRequired  = "payment_required"
	ReasonAlreadyActive    = "already_active"
)

var (
	// ErrEmptyPlate is returned when a caller passes a blank plate reading.
	ErrEmptyPlate = errors.New("parking: plate required")
	// ErrUnknownZone is returned for a zone with no configured capacity.
	ErrUnknownZone = errors.New("parking: unknown zone")
	// ErrSessionNotFound aliases the repository sentinel for callers.
	ErrSessionNotFound = repository.ErrSessionNotFound
)

// Overridable in tests.
var (
	timeNow      = func() time.Time { return time.Now().UTC() }
	newSessionID = uuid.NewString
)

// Result is the structured outcome of an admission/release decision.
type Result struct {
	OK        bool    `json:"ok"`
	Message   string  `json:"message"`
	Occupancy int     `json:"occupancy"`
	Reason    string  `json:"reason,omitempty"`
	Plate     string  `json:"plate,omitempty"`
	AmountDue float64 `json:"amount_due,omitempty"`
}

// ZoneOccupancy pairs current occupancy with configured capacity.
type ZoneOccupancy struct {
	Occupied int `json:"occupied"`
	Capacity int `json:"capacity"`
}

// SessionRepository defines the storage contract used by the service.
type SessionRepository interface {
	Insert(ctx context.Context, session *models.ParkingSession) error
	FindActiveByPlate(ctx context.Context, plate string) (*models.ParkingSession, error)
	ListActive(ctx context.Context) ([]models.ParkingSession, error)
	Update(ctx context.Context, session *models.ParkingSession) error
}

// Config carries the parking policy knobs.
type Config struct {
	Zones                    map[string]int
	RequirePrepayment        bool
	EvacuationClosesSessions bool
}

// ParkingService enforces capacity, session uniqueness and payment gating.
// All mutating operations run under one lock so that check-then-act sequences
// (capacity check + insert, lookup + insert, match + close) are atomic.
type ParkingService struct {
	mu     sync.Mutex
	cfg    Config
	repo   SessionRepository
	calc   *fee.Calculator
	gate   gate.Controller
	cache  *redisstore.Store
	logger *zap.Logger

	occupancy map[string]int
}

// NewParkingService builds service. The cache is optional.
func NewParkingService(
	cfg Config,
	repo SessionRepository,
	calc *fee.Calculator,
	barrier gate.Controller,
	cache *redisstore.Store,
	logger *zap.Logger,
) *ParkingService {
	if cfg.Zones == nil {
		cfg.Zones = map[string]int{DefaultZone: 20}
	}
	return &ParkingService{
		cfg:       cfg,
		repo:      repo,
		calc:      calc,
		gate:      barrier,
		cache:     cache,
		logger:    logger,
		occupancy: make(map[string]int, len(cfg.Zones)),
	}
}

// Prime rebuilds occupancy counters from the repository, typically at startup.
func (s *ParkingService) Prime(ctx context.Context) error {
	sessions, err := s.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("prime occupancy: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.occupancy = make(map[string]int, len(s.cfg.Zones))
	for i := range sessions {
		s.occupancy[sessions[i].Zone]++
	}
	for zone, count := range s.occupancy {
		s.publishOccupancy(ctx, zone, count)
	}
	return nil
}

// ProcessEntry decides whether to admit a vehicle into a zone.
func (s *ParkingService) ProcessEntry(ctx context.Context, plate, zone, imagePath string) (Result, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return Result{}, ErrEmptyPlate
	}
	if zone == "" {
		zone = DefaultZone
	}
	capacity, ok := s.cfg.Zones[zone]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownZone, zone)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.occupancy[zone] >= capacity {
		return Result{
			OK:        false,
			Reason:    ReasonCapacityExceeded,
			Message:   "no space",
			Occupancy: s.occupancy[zone],
		}, nil
	}

	existing, err := s.repo.FindActiveByPlate(ctx, plate)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return Result{}, err
	}
	if existing != nil {
		// Same plate read again while the vehicle is inside. Idempotent
		// success, no new session and no second gate trigger.
		return Result{
			OK:        true,
			Reason:    ReasonAlreadyActive,
			Message:   "vehicle already inside",
			Plate:     plate,
			Occupancy: s.occupancy[zone],
		}, nil
	}

	session := &models.ParkingSession{
		ID:        newSessionID(),
		Plate:     plate,
		Zone:      zone,
		EntryTime: timeNow(),
		ImagePath: imagePath,
	}
	if err := s.repo.Insert(ctx, session); err != nil {
		return Result{}, err
	}

	s.occupancy[zone]++
	s.cacheAdmission(ctx, session)
	s.gate.Open(zone)
	s.logger.Info("vehicle admitted",
		zap.String("plate", plate),
		zap.String("zone", zone),
		zap.Int("occupancy", s.occupancy[zone]),
	)
	return Result{
		OK:        true,
		Message:   "entry allowed",
		Plate:     plate,
		Occupancy: s.occupancy[zone],
	}, nil
}

// ProcessExit decides whether to release a vehicle, tolerating recognition
// noise in the plate reading.
func (s *ParkingService) ProcessExit(ctx context.Context, plate string) (Result, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return Result{}, ErrEmptyPlate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return Result{}, err
	}

	candidates := make([]string, len(active))
	for i := range active {
		candidates[i] = active[i].Plate
	}
	best, ok := match.Best(plate, candidates)
	if !ok {
		return Result{
			OK:        false,
			Reason:    ReasonNotFound,
			Message:   "ticket not found",
			Occupancy: s.totalOccupancy(),
		}, nil
	}

	var session *models.ParkingSession
	for i := range active {
		if active[i].Plate == best.Plate {
			session = &active[i]
			break
		}
	}

	now := timeNow()
	if s.cfg.RequirePrepayment && !session.IsPaid {
		amount := s.calc.Compute(session.EntryTime, now)
		return Result{
			OK:        false,
			Reason:    ReasonPaymentRequired,
			Message:   fmt.Sprintf("payment of %.2f required before exit", amount),
			Plate:     session.Plate,
			AmountDue: amount,
			Occupancy: s.occupancy[session.Zone],
		}, nil
	}

	session.ExitTime = &now
	if !session.IsPaid {
		session.AmountDue = s.calc.Compute(session.EntryTime, now)
		session.IsPaid = true
	}
	if err := s.repo.Update(ctx, session); err != nil {
		return Result{}, err
	}

	s.occupancy[session.Zone]--
	s.cacheRelease(ctx, session)
	s.gate.Open(session.Zone)
	s.logger.Info("vehicle released",
		zap.String("plate", session.Plate),
		zap.String("read_plate", plate),
		zap.Int("distance", best.Distance),
		zap.String("zone", session.Zone),
		zap.Int("occupancy", s.occupancy[session.Zone]),
	)
	return Result{
		OK:        true,
		Message:   fmt.Sprintf("thank you %s", session.Plate),
		Plate:     session.Plate,
		Occupancy: s.occupancy[session.Zone],
	}, nil
}

// Pay settles the fee for an active session found by exact plate. Payment is
// operator-initiated from a known record, so no fuzzy matching here.
func (s *ParkingService) Pay(ctx context.Context, plate string) (float64, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return 0, ErrEmptyPlate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.repo.FindActiveByPlate(ctx, plate)
	if err != nil {
		return 0, err
	}

	amount := s.calc.Compute(session.EntryTime, timeNow())
	session.AmountDue = amount
	session.IsPaid = true
	if err := s.repo.Update(ctx, session); err != nil {
		return 0, err
	}

	// Courtesy trigger so a vehicle waiting at the barrier is not stranded.
	s.gate.Open(session.Zone)
	s.logger.Info("payment recorded",
		zap.String("plate", session.Plate),
		zap.Float64("amount", amount),
	)
	return amount, nil
}

// ForceExit is the administrative override: closes the session regardless of
// payment state.
func (s *ParkingService) ForceExit(ctx context.Context, plate string) (Result, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return Result{}, ErrEmptyPlate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.repo.FindActiveByPlate(ctx, plate)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return Result{
				OK:        false,
				Reason:    ReasonNotFound,
				Message:   "ticket not found",
				Occupancy: s.totalOccupancy(),
			}, nil
		}
		return Result{}, err
	}

	now := timeNow()
	session.ExitTime = &now
	if err := s.repo.Update(ctx, session); err != nil {
		return Result{}, err
	}

	s.occupancy[session.Zone]--
	s.cacheRelease(ctx, session)
	s.gate.Open(session.Zone)
	s.logger.Warn("forced exit",
		zap.String("plate", session.Plate),
		zap.Bool("was_paid", session.IsPaid),
		zap.String("zone", session.Zone),
	)
	return Result{
		OK:        true,
		Message:   fmt.Sprintf("forced exit %s", session.Plate),
		Plate:     session.Plate,
		Occupancy: s.occupancy[session.Zone],
	}, nil
}

// ManualOpen opens a zone's gate without touching any session.
func (s *ParkingService) ManualOpen(zone string) Result {
	if zone == "" {
		zone = DefaultZone
	}
	s.mu.Lock()
	occupancy := s.occupancy[zone]
	s.mu.Unlock()

	s.gate.Open(zone)
	s.logger.Warn("manual gate open", zap.String("zone", zone))
	return Result{OK: true, Message: "gate opened", Occupancy: occupancy}
}

// EmergencyEvacuation opens every zone's gate. Closing the active sessions is
// a policy decision: with EvacuationClosesSessions unset the sessions stay
// open and must be reconciled manually afterwards.
func (s *ParkingService) EmergencyEvacuation(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for zone := range s.cfg.Zones {
		s.gate.Open(zone)
	}
	s.logger.Warn("emergency evacuation triggered",
		zap.Bool("closing_sessions", s.cfg.EvacuationClosesSessions),
	)

	if !s.cfg.EvacuationClosesSessions {
		return Result{OK: true, Message: "evacuation: gates opened", Occupancy: s.totalOccupancy()}, nil
	}

	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return Result{}, err
	}
	now := timeNow()
	closed := 0
	for i := range active {
		session := &active[i]
		session.ExitTime = &now
		if err := s.repo.Update(ctx, session); err != nil {
			return Result{}, fmt.Errorf("evacuation close %s: %w", session.Plate, err)
		}
		s.occupancy[session.Zone]--
		s.cacheRelease(ctx, session)
		closed++
	}
	return Result{
		OK:        true,
		Message:   fmt.Sprintf("evacuation: gates opened, %d sessions closed", closed),
		Occupancy: s.totalOccupancy(),
	}, nil
}

// ActiveSessions lists vehicles currently inside. Read-only, runs against a
// repository snapshot without taking the service lock.
func (s *ParkingService) ActiveSessions(ctx context.Context) ([]models.ParkingSession, error) {
	return s.repo.ListActive(ctx)
}

// PreviewFee computes the current fee for an active session without mutation.
func (s *ParkingService) PreviewFee(ctx context.Context, plate string) (float64, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return 0, ErrEmptyPlate
	}
	session, err := s.repo.FindActiveByPlate(ctx, plate)
	if err != nil {
		return 0, err
	}
	return s.calc.Compute(session.EntryTime, timeNow()), nil
}

// Occupancy returns per-zone occupancy against configured capacity.
func (s *ParkingService) Occupancy() map[string]ZoneOccupancy {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := make(map[string]ZoneOccupancy, len(s.cfg.Zones))
	for zone, capacity := range s.cfg.Zones {
		report[zone] = ZoneOccupancy{Occupied: s.occupancy[zone], Capacity: capacity}
	}
	return report
}

func (s *ParkingService) totalOccupancy() int {
	total := 0
	for _, count := range s.occupancy {
		total += count
	}
	return total
}

// cacheAdmission mirrors the admitted vehicle into redis, best-effort.
func (s *ParkingService) cacheAdmission(ctx context.Context, session *models.ParkingSession) {
	if s.cache == nil {
		return
	}
	err := s.cache.SaveVehicle(ctx, redisstore.ActiveVehicle{
		SessionID: session.ID,
		Plate:     session.Plate,
		Zone:      session.Zone,
		EntryTime: session.EntryTime,
	})
	if err != nil && err != redis.Nil {
		s.logger.Warn("failed to cache admitted vehicle", zap.Error(err))
	}
	s.publishOccupancy(ctx, session.Zone, s.occupancy[session.Zone])
}

// cacheRelease drops the released vehicle from redis, best-effort.
func (s *ParkingService) cacheRelease(ctx context.Context, session *models.ParkingSession) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteVehicle(ctx, session.Plate); err != nil && err != redis.Nil {
		s.logger.Warn("failed to drop released vehicle from cache", zap.Error(err))
	}
	s.publishOccupancy(ctx, session.Zone, s.occupancy[session.Zone])
}

func (s *ParkingService) publishOccupancy(ctx context.Context, zone string, count int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetOccupancy(ctx, zone, count); err != nil {
		s.logger.Warn("failed to publish occupancy gauge", zap.String("zone", zone), zap.Error(err))
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"parkgate/internal/fee"
	"parkgate/internal/models"
	"parkgate/internal/repository"
)

type fakeRepo struct {
	mu        sync.Mutex
	sessions  []*models.ParkingSession
	insertErr error
	updateErr error
	listErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{}
}

func (f *fakeRepo) Insert(_ context.Context, session *models.ParkingSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	stored := *session
	f.sessions = append(f.sessions, &stored)
	return nil
}

func (f *fakeRepo) FindActiveByPlate(_ context.Context, plate string) (*models.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.Plate == plate && s.ExitTime == nil {
			copySession := *s
			return &copySession, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeRepo) ListActive(_ context.Context) ([]models.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var active []models.ParkingSession
	for _, s := range f.sessions {
		if s.ExitTime == nil {
			active = append(active, *s)
		}
	}
	return active, nil
}

func (f *fakeRepo) Update(_ context.Context, session *models.ParkingSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	for i, s := range f.sessions {
		if s.ID == session.ID {
			stored := *session
			f.sessions[i] = &stored
			return nil
		}
	}
	return repository.ErrSessionNotFound
}

func (f *fakeRepo) setInsertErr(err error) {
	f.mu.Lock()
	f.insertErr = err
	f.mu.Unlock()
}

func (f *fakeRepo) setUpdateErr(err error) {
	f.mu.Lock()
	f.updateErr = err
	f.mu.Unlock()
}

func (f *fakeRepo) sessionByPlate(plate string) *models.ParkingSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.Plate == plate {
			copySession := *s
			return &copySession
		}
	}
	return nil
}

func (f *fakeRepo) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type fakeGate struct {
	mu    sync.Mutex
	opens []string
}

func (f *fakeGate) Open(zone string) {
	f.mu.Lock()
	f.opens = append(f.opens, zone)
	f.mu.Unlock()
}

func (f *fakeGate) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func setNow(t *testing.T, now time.Time) {
	t.Helper()
	original := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = original })
}

func advanceNow(t *testing.T, base time.Time, by time.Duration) {
	t.Helper()
	original := timeNow
	timeNow = func() time.Time { return base.Add(by) }
	t.Cleanup(func() { timeNow = original })
}

func newTestService(cfg Config, repo SessionRepository, barrier *fakeGate) *ParkingService {
	return NewParkingService(cfg, repo, fee.NewCalculator(2.0), barrier, nil, zap.NewNop())
}

func TestProcessEntryAdmitsVehicle(t *testing.T) {
	setNow(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 2}}, repo, barrier)

	result, err := svc.ProcessEntry(context.Background(), "ab123cd", "A", "")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected admission, got %+v", result)
	}
	if result.Occupancy != 1 {
		t.Fatalf("expected occupancy 1, got %d", result.Occupancy)
	}
	if barrier.openCount() != 1 {
		t.Fatalf("expected 1 gate trigger, got %d", barrier.openCount())
	}

	session := repo.sessionByPlate("AB123CD")
	if session == nil {
		t.Fatalf("expected persisted session with normalized plate")
	}
	if session.IsPaid || session.AmountDue != 0 {
		t.Fatalf("new session must be unpaid with zero amount, got %+v", session)
	}
	if session.ExitTime != nil {
		t.Fatalf("new session must be active")
	}
}

func TestProcessEntryDeniesWhenZoneFull(t *testing.T) {
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 1}}, repo, barrier)

	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err != nil {
		t.Fatalf("first entry: %v", err)
	}

	result, err := svc.ProcessEntry(context.Background(), "XY999ZZ", "A", "")
	if err != nil {
		t.Fatalf("second entry: %v", err)
	}
	if result.OK {
		t.Fatalf("expected denial when zone is full")
	}
	if result.Reason != ReasonCapacityExceeded {
		t.Fatalf("expected capacity reason, got %s", result.Reason)
	}
	if result.Message != "no space" {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if result.Occupancy != 1 {
		t.Fatalf("occupancy must stay 1, got %d", result.Occupancy)
	}
	if repo.sessionCount() != 1 {
		t.Fatalf("denied entry must not create a session")
	}
	if barrier.openCount() != 1 {
		t.Fatalf("denied entry must not trigger the gate")
	}
}

func TestProcessEntryIdempotentForActivePlate(t *testing.T) {
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 5}}, repo, barrier)

	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err != nil {
		t.Fatalf("first entry: %v", err)
	}

	for i := 0; i < 2; i++ {
		result, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", "")
		if err != nil {
			t.Fatalf("repeat entry: %v", err)
		}
		if !result.OK {
			t.Fatalf("repeat entry must be an idempotent success")
		}
		if result.Reason != ReasonAlreadyActive {
			t.Fatalf("expected already-active reason, got %s", result.Reason)
		}
		if result.Occupancy != 1 {
			t.Fatalf("occupancy must stay 1, got %d", result.Occupancy)
		}
	}
	if repo.sessionCount() != 1 {
		t.Fatalf("repeat entry must not create sessions, got %d", repo.sessionCount())
	}
	if barrier.openCount() != 1 {
		t.Fatalf("repeat entry must not re-trigger the gate, got %d", barrier.openCount())
	}
}

func TestProcessExitFuzzyMatchReleasesVehicle(t *testing.T) {
	entry := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	setNow(t, entry)
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 1}}, repo, barrier)

	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err != nil {
		t.Fatalf("entry: %v", err)
	}

	advanceNow(t, entry, 30*time.Minute)

	// One-character recognition error on the way out.
	result, err := svc.ProcessExit(context.Background(), "AB124CD")
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected release, got %+v", result)
	}
	if result.Plate != "AB123CD" {
		t.Fatalf("expected matched plate AB123CD, got %s", result.Plate)
	}
	if result.Occupancy != 0 {
		t.Fatalf("expected occupancy 0, got %d", result.Occupancy)
	}
	if barrier.openCount() != 2 {
		t.Fatalf("expected entry and exit gate triggers, got %d", barrier.openCount())
	}

	session := repo.sessionByPlate("AB123CD")
	if session.ExitTime == nil {
		t.Fatalf("session must be closed")
	}
	if !session.IsPaid || session.AmountDue != 2.0 {
		t.Fatalf("auto-settle must record one billable hour, got %+v", session)
	}

	// The freed spot is usable again.
	again, err := svc.ProcessEntry(context.Background(), "XY999ZZ", "A", "")
	if err != nil {
		t.Fatalf("re-entry: %v", err)
	}
	if !again.OK {
		t.Fatalf("expected admission after release, got %+v", again)
	}
}

func TestProcessExitUnknownPlate(t *testing.T) {
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 5}}, repo, barrier)

	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err != nil {
		t.Fatalf("entry: %v", err)
	}

	result, err := svc.ProcessExit(context.Background(), "QQ777QQ")
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if result.OK {
		t.Fatalf("expected denial for distant plate")
	}
	if result.Reason != ReasonNotFound {
		t.Fatalf("expected not-found reason, got %s", result.Reason)
	}
	if result.Message != "ticket not found" {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if result.Occupancy != 1 {
		t.Fatalf("occupancy must stay 1, got %d", result.Occupancy)
	}
	if barrier.openCount() != 1 {
		t.Fatalf("denied exit must not trigger the gate")
	}
}

func TestProcessExitPrefersCloserCandidate(t *testing.T) {
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 5}}, repo, barrier)

	// Distance 2 and distance 1 from the query "AB123CD".
	if _, err := svc.ProcessEntry(context.Background(), "AB155CD", "A", ""); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if _, err := svc.ProcessEntry(context.Background(), "AB124CD", "A", ""); err != nil {
		t.Fatalf("entry: %v", err)
	}

	result, err := svc.ProcessExit(context.Background(), "AB123CD")
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if !result.OK || result.Plate != "AB124CD" {
		t.Fatalf("expected closer session AB124CD to be released, got %+v", result)
	}
}

func TestProcessExitRequiresPrepayment(t *testing.T) {
	entry := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	setNow(t, entry)
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 1}, RequirePrepayment: true}, repo, barrier)

	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err != nil {
		t.Fatalf("entry: %v", err)
	}

	advanceNow(t, entry, 30*time.Minute)

	result, err := svc.ProcessExit(context.Background(), "AB123CD")
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if result.OK {
		t.Fatalf("unpaid exit must be denied")
	}
	if result.Reason != ReasonPaymentRequired {
		t.Fatalf("expected payment-required reason, got %s", result.Reason)
	}
	if result.AmountDue != 2.0 {
		t.Fatalf("expected one billable hour (2.0), got %v", result.AmountDue)
	}
	if barrier.openCount() != 1 {
		t.Fatalf("denied exit must not trigger the gate")
	}
	if s := repo.sessionByPlate("AB123CD"); s.IsPaid || s.ExitTime != nil {
		t.Fatalf("denied exit must not mutate the session, got %+v", s)
	}

	amount, err := svc.Pay(context.Background(), "AB123CD")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if amount != 2.0 {
		t.Fatalf("expected fee 2.0, got %v", amount)
	}
	if s := repo.sessionByPlate("AB123CD"); !s.IsPaid || s.AmountDue != 2.0 {
		t.Fatalf("payment must persist, got %+v", s)
	}
	if barrier.openCount() != 2 {
		t.Fatalf("payment opens the gate as courtesy, got %d triggers", barrier.openCount())
	}

	result, err = svc.ProcessExit(context.Background(), "AB123CD")
	if err != nil {
		t.Fatalf("paid exit: %v", err)
	}
	if !result.OK {
		t.Fatalf("paid exit must be released, got %+v", result)
	}
	if result.Occupancy != 0 {
		t.Fatalf("expected occupancy 0, got %d", result.Occupancy)
	}
	if s := repo.sessionByPlate("AB123CD"); s.AmountDue != 2.0 {
		t.Fatalf("release must not recompute a settled fee, got %+v", s)
	}
}

func TestPayUnknownPlate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(Config{Zones: map[string]int{"A": 1}}, repo, &fakeGate{})

	if _, err := svc.Pay(context.Background(), "AB123CD"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session-not-found, got %v", err)
	}
}

func TestForceExitReleasesUnpaidSession(t *testing.T) {
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 1}, RequirePrepayment: true}, repo, barrier)

	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err != nil {
		t.Fatalf("entry: %v", err)
	}

	result, err := svc.ForceExit(context.Background(), "AB123CD")
	if err != nil {
		t.Fatalf("force exit: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected forced release, got %+v", result)
	}
	if result.Occupancy != 0 {
		t.Fatalf("expected occupancy 0, got %d", result.Occupancy)
	}

	session := repo.sessionByPlate("AB123CD")
	if session.ExitTime == nil {
		t.Fatalf("session must be closed")
	}
	if session.IsPaid {
		t.Fatalf("force exit must not flip payment state")
	}
}

func TestForceExitUnknownPlate(t *testing.T) {
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 1}}, repo, barrier)

	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err != nil {
		t.Fatalf("entry: %v", err)
	}

	result, err := svc.ForceExit(context.Background(), "ZZ000ZZ")
	if err != nil {
		t.Fatalf("force exit: %v", err)
	}
	if result.OK {
		t.Fatalf("expected not-found result")
	}
	if result.Reason != ReasonNotFound {
		t.Fatalf("expected not-found reason, got %s", result.Reason)
	}
	if result.Occupancy != 1 {
		t.Fatalf("occupancy must stay 1, got %d", result.Occupancy)
	}
	if barrier.openCount() != 1 {
		t.Fatalf("failed override must not trigger the gate")
	}
}

func TestManualOpenTouchesNoSession(t *testing.T) {
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 1}}, repo, barrier)

	result := svc.ManualOpen("A")
	if !result.OK {
		t.Fatalf("manual open must succeed")
	}
	if barrier.openCount() != 1 {
		t.Fatalf("expected one gate trigger, got %d", barrier.openCount())
	}
	if repo.sessionCount() != 0 {
		t.Fatalf("manual open must not create sessions")
	}
}

func TestEvacuationKeepsSessionsByDefault(t *testing.T) {
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 5}}, repo, barrier)

	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err != nil {
		t.Fatalf("entry: %v", err)
	}

	result, err := svc.EmergencyEvacuation(context.Background())
	if err != nil {
		t.Fatalf("evacuation: %v", err)
	}
	if !result.OK {
		t.Fatalf("evacuation must succeed")
	}
	if result.Occupancy != 1 {
		t.Fatalf("default policy keeps sessions open, occupancy should stay 1, got %d", result.Occupancy)
	}
	if s := repo.sessionByPlate("AB123CD"); s.ExitTime != nil {
		t.Fatalf("default policy must not close sessions")
	}
}

func TestEvacuationClosesSessionsWhenConfigured(t *testing.T) {
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 5}, EvacuationClosesSessions: true}, repo, barrier)

	for _, plate := range []string{"AB123CD", "XY999ZZ"} {
		if _, err := svc.ProcessEntry(context.Background(), plate, "A", ""); err != nil {
			t.Fatalf("entry %s: %v", plate, err)
		}
	}

	result, err := svc.EmergencyEvacuation(context.Background())
	if err != nil {
		t.Fatalf("evacuation: %v", err)
	}
	if result.Occupancy != 0 {
		t.Fatalf("expected occupancy 0 after evacuation, got %d", result.Occupancy)
	}
	for _, plate := range []string{"AB123CD", "XY999ZZ"} {
		if s := repo.sessionByPlate(plate); s.ExitTime == nil {
			t.Fatalf("session %s must be closed", plate)
		}
	}
}

func TestRepositoryFailureLeavesStateUntouched(t *testing.T) {
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": 5}}, repo, barrier)

	repo.setInsertErr(errors.New("connection reset"))
	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err == nil {
		t.Fatalf("expected insert failure to propagate")
	}
	if svc.Occupancy()["A"].Occupied != 0 {
		t.Fatalf("failed insert must not change occupancy")
	}
	if barrier.openCount() != 0 {
		t.Fatalf("failed insert must not trigger the gate")
	}

	repo.setInsertErr(nil)
	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err != nil {
		t.Fatalf("entry: %v", err)
	}

	repo.setUpdateErr(errors.New("connection reset"))
	if _, err := svc.ProcessExit(context.Background(), "AB123CD"); err == nil {
		t.Fatalf("expected update failure to propagate")
	}
	if svc.Occupancy()["A"].Occupied != 1 {
		t.Fatalf("failed update must not change occupancy")
	}
	if barrier.openCount() != 1 {
		t.Fatalf("failed update must not trigger the gate")
	}
	if s := repo.sessionByPlate("AB123CD"); s.ExitTime != nil {
		t.Fatalf("failed update must leave the session active")
	}
}

func TestConcurrentEntriesNeverExceedCapacity(t *testing.T) {
	const capacity = 5
	repo := newFakeRepo()
	barrier := &fakeGate{}
	svc := newTestService(Config{Zones: map[string]int{"A": capacity}}, repo, barrier)

	var wg sync.WaitGroup
	admitted := make([]bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.ProcessEntry(context.Background(), fmt.Sprintf("PL%03dXX", i), "A", "")
			if err != nil {
				t.Errorf("entry %d: %v", i, err)
				return
			}
			admitted[i] = result.OK
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range admitted {
		if ok {
			count++
		}
	}
	if count != capacity {
		t.Fatalf("expected exactly %d admissions, got %d", capacity, count)
	}
	if got := svc.Occupancy()["A"].Occupied; got != capacity {
		t.Fatalf("occupancy %d exceeds capacity %d", got, capacity)
	}
	if repo.sessionCount() != capacity {
		t.Fatalf("expected %d sessions, got %d", capacity, repo.sessionCount())
	}
}

func TestConcurrentSamePlateCreatesOneSession(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(Config{Zones: map[string]int{"A": 10}}, repo, &fakeGate{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err != nil {
				t.Errorf("entry: %v", err)
			}
		}()
	}
	wg.Wait()

	if repo.sessionCount() != 1 {
		t.Fatalf("expected a single session for one plate, got %d", repo.sessionCount())
	}
	if got := svc.Occupancy()["A"].Occupied; got != 1 {
		t.Fatalf("expected occupancy 1, got %d", got)
	}
}

func TestPrimeRebuildsOccupancy(t *testing.T) {
	repo := newFakeRepo()
	seeded := newTestService(Config{Zones: map[string]int{"A": 5, "B": 5}}, repo, &fakeGate{})
	for plate, zone := range map[string]string{"AB123CD": "A", "XY999ZZ": "B", "QQ111WW": "B"} {
		if _, err := seeded.ProcessEntry(context.Background(), plate, zone, ""); err != nil {
			t.Fatalf("seed entry: %v", err)
		}
	}

	// Fresh service instance over the same repository, as after a restart.
	svc := newTestService(Config{Zones: map[string]int{"A": 5, "B": 5}}, repo, &fakeGate{})
	if err := svc.Prime(context.Background()); err != nil {
		t.Fatalf("prime: %v", err)
	}

	report := svc.Occupancy()
	if report["A"].Occupied != 1 || report["B"].Occupied != 2 {
		t.Fatalf("unexpected primed occupancy %+v", report)
	}
}

func TestPreviewFeeDoesNotMutateSession(t *testing.T) {
	entry := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	setNow(t, entry)
	repo := newFakeRepo()
	svc := newTestService(Config{Zones: map[string]int{"A": 1}, RequirePrepayment: true}, repo, &fakeGate{})

	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "A", ""); err != nil {
		t.Fatalf("entry: %v", err)
	}

	advanceNow(t, entry, 90*time.Minute)

	amount, err := svc.PreviewFee(context.Background(), "AB123CD")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if amount != 4.0 {
		t.Fatalf("expected two billable hours (4.0), got %v", amount)
	}
	if s := repo.sessionByPlate("AB123CD"); s.IsPaid || s.AmountDue != 0 {
		t.Fatalf("preview must not mutate the session, got %+v", s)
	}
}

func TestProcessEntryRejectsEmptyPlate(t *testing.T) {
	svc := newTestService(Config{Zones: map[string]int{"A": 1}}, newFakeRepo(), &fakeGate{})
	if _, err := svc.ProcessEntry(context.Background(), "  ", "A", ""); !errors.Is(err, ErrEmptyPlate) {
		t.Fatalf("expected empty-plate error, got %v", err)
	}
}

func TestProcessEntryRejectsUnknownZone(t *testing.T) {
	svc := newTestService(Config{Zones: map[string]int{"A": 1}}, newFakeRepo(), &fakeGate{})
	if _, err := svc.ProcessEntry(context.Background(), "AB123CD", "Z", ""); !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("expected unknown-zone error, got %v", err)
	}
}

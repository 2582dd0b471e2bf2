package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cinebook/cinebook/internal/model"
	"github.com/cinebook/cinebook/internal/queue"
	"github.com/cinebook/cinebook/internal/repository"
)

// availKey mirrors the (session, seat) availability cache key.
type availKey struct {
	sessionID uint64
	seatID    uint64
}

// fakeCache is an in-memory SeatCache.  TTLs are kept as-is; the
// service applies its own expiry comparison for holds.
type fakeCache struct {
	mu          sync.Mutex
	avail       map[availKey]bool
	availUntil  map[availKey]time.Time
	holds       map[uint64]time.Time
	getAvailErr error
	getHoldErr  error
	setHoldErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		avail:      map[availKey]bool{},
		availUntil: map[availKey]time.Time{},
		holds:      map[uint64]time.Time{},
	}
}

func (f *fakeCache) GetAvailability(_ context.Context, sessionID, seatID uint64) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getAvailErr != nil {
		return false, false, f.getAvailErr
	}
	v, ok := f.avail[availKey{sessionID, seatID}]
	return v, ok, nil
}

func (f *fakeCache) SetAvailability(_ context.Context, sessionID, seatID uint64, available bool, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.avail[availKey{sessionID, seatID}] = available
	f.availUntil[availKey{sessionID, seatID}] = until
	return nil
}

func (f *fakeCache) GetHold(_ context.Context, seatID uint64) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getHoldErr != nil {
		return time.Time{}, false, f.getHoldErr
	}
	exp, ok := f.holds[seatID]
	return exp, ok, nil
}

func (f *fakeCache) SetHold(_ context.Context, seatID uint64, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setHoldErr != nil {
		return f.setHoldErr
	}
	f.holds[seatID] = expiresAt
	return nil
}

// fakeLedger is an in-memory ReservationLedger.
type fakeLedger struct {
	mu        sync.Mutex
	nextID    uint64
	rows      map[uint64]model.Reservation
	insertErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[uint64]model.Reservation{}}
}

func (f *fakeLedger) Insert(_ context.Context, res *model.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextID++
	res.ID = f.nextID
	res.CreatedAt = time.Now().UTC()
	f.rows[res.ID] = *res
	return nil
}

func (f *fakeLedger) FindByID(_ context.Context, id uint64) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	out := r
	return &out, nil
}

func (f *fakeLedger) FindActiveBySeat(_ context.Context, sessionSeatID uint64, now time.Time) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.SessionSeatID == sessionSeatID && r.Active(now) {
			out := r
			return &out, nil
		}
	}
	return nil, repository.ErrReservationNotFound
}

func (f *fakeLedger) ListExpired(_ context.Context, now time.Time) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reservation
	for _, r := range f.rows {
		if !r.Active(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedger) Delete(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// fakeSeats is an in-memory SeatStore.
type fakeSeats struct {
	seats map[uint64]model.SessionSeat
}

func (f *fakeSeats) FindByID(_ context.Context, id uint64) (*model.SessionSeat, error) {
	s, ok := f.seats[id]
	if !ok {
		return nil, repository.ErrSeatNotFound
	}
	out := s
	return &out, nil
}

// fakeSessions is an in-memory SessionStore.
type fakeSessions struct {
	sessions map[uint64]model.Session
}

func (f *fakeSessions) GetByID(_ context.Context, id uint64) (*model.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	out := s
	return &out, nil
}

// fakeBus records published events and can be told to fail.
type fakeBus struct {
	mu          sync.Mutex
	created     []queue.ReservationCreatedEvent
	expired     []queue.ReservationExpiredEvent
	released    []queue.SeatReleasedEvent
	conflicts   []queue.ReservationConflictEvent
	failExpired bool
}

var errBusDown = errors.New("bus down")

func (f *fakeBus) PublishReservationCreated(_ context.Context, ev queue.ReservationCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, ev)
	return nil
}

func (f *fakeBus) PublishReservationExpired(_ context.Context, ev queue.ReservationExpiredEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failExpired {
		return errBusDown
	}
	f.expired = append(f.expired, ev)
	return nil
}

func (f *fakeBus) PublishSeatReleased(_ context.Context, ev queue.SeatReleasedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, ev)
	return nil
}

func (f *fakeBus) PublishReservationConflict(_ context.Context, ev queue.ReservationConflictEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflicts = append(f.conflicts, ev)
	return nil
}

// fakeSales scripts ConfirmSale outcomes per reservation id.
type fakeSales struct {
	mu      sync.Mutex
	results map[uint64]*repository.SaleResult
	errs    map[uint64]error
	calls   []uint64
}

func newFakeSales() *fakeSales {
	return &fakeSales{results: map[uint64]*repository.SaleResult{}, errs: map[uint64]error{}}
}

func (f *fakeSales) ConfirmSale(_ context.Context, reservationID uint64, _ time.Time) (*repository.SaleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, reservationID)
	if err, ok := f.errs[reservationID]; ok {
		return nil, err
	}
	if res, ok := f.results[reservationID]; ok {
		// A confirmed sale consumes the hold; the next delivery
		// finds nothing, like the real store.
		delete(f.results, reservationID)
		f.errs[reservationID] = repository.ErrReservationNotFound
		return res, nil
	}
	return nil, repository.ErrReservationNotFound
}

// fakePayments tracks refunds by external id.
type fakePayments struct {
	mu       sync.Mutex
	known    map[uint64]bool // external id -> exists
	refunded map[uint64]bool
}

func newFakePayments(externalIDs ...uint64) *fakePayments {
	p := &fakePayments{known: map[uint64]bool{}, refunded: map[uint64]bool{}}
	for _, id := range externalIDs {
		p.known[id] = true
	}
	return p
}

func (f *fakePayments) RefundByExternalID(_ context.Context, externalID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[externalID] || f.refunded[externalID] {
		return false, nil
	}
	f.refunded[externalID] = true
	return true, nil
}

package registry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/ridebot/internal/matcher"
	"github.com/example/ridebot/internal/models"
	"github.com/example/ridebot/internal/observability"
)

var (
	ErrTripNotFound     = errors.New("trip not found")
	ErrNotOwner         = errors.New("not the trip owner")
	ErrNoPendingRequest = errors.New("no pending join request")
	ErrAlreadyRequested = errors.New("join already requested")
	ErrNotPassenger     = errors.New("not a passenger of this trip")
	ErrTripLimit        = errors.New("active trip limit reached")
)

// DefaultMaxActiveTrips is how many future trips one driver may hold.
const DefaultMaxActiveTrips = 2

// Saver persists a full snapshot.
type Saver interface {
	Save(ctx context.Context, snap *models.Snapshot) error
}

// Registry owns every shared collection of the bot. One mutex serializes all
// reads and writes, and every mutation is persisted before the lock is
// released. Methods return copies so callers can notify users without
// holding the lock.
type Registry struct {
	mu        sync.Mutex
	snap      *models.Snapshot
	store     Saver
	logger    *slog.Logger
	now       func() time.Time
	maxActive int
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithMaxActiveTrips(n int) Option {
	return func(r *Registry) { r.maxActive = n }
}

func New(snap *models.Snapshot, store Saver, logger *slog.Logger, opts ...Option) *Registry {
	if snap == nil {
		snap = models.NewSnapshot()
	}
	snap.Normalize()
	r := &Registry{
		snap:      snap,
		store:     store,
		logger:    logger,
		now:       time.Now,
		maxActive: DefaultMaxActiveTrips,
	}
	for _, opt := range opts {
		opt(r)
	}
	observability.LiveTrips.Set(float64(len(snap.Trips)))
	return r
}

// Now is the registry clock.
func (r *Registry) Now() time.Time { return r.now() }

func (r *Registry) MaxActiveTrips() int { return r.maxActive }

// saveLocked must be called with r.mu held. Failures leave the in-memory
// state as the only copy until the next successful save.
func (r *Registry) saveLocked(ctx context.Context) {
	observability.LiveTrips.Set(float64(len(r.snap.Trips)))
	if err := r.store.Save(ctx, r.snap); err != nil {
		r.logger.Error("snapshot save failed", "error", err)
	}
}

// Flush persists the current state unconditionally.
func (r *Registry) Flush(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveLocked(ctx)
}

// Profile returns a copy of the chat's profile.
func (r *Registry) Profile(chatID int64) (models.UserProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.snap.Users[chatID]
	if !ok {
		return models.UserProfile{}, false
	}
	return *p, true
}

// EnsureProfile creates an empty profile for an unseen chat.
func (r *Registry) EnsureProfile(ctx context.Context, chatID int64) (models.UserProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.snap.Users[chatID]; ok {
		return *p, false
	}
	p := &models.UserProfile{ChatID: chatID}
	r.snap.Users[chatID] = p
	r.saveLocked(ctx)
	return *p, true
}

// UpdateProfile applies fn to the chat's profile, creating it if needed.
func (r *Registry) UpdateProfile(ctx context.Context, chatID int64, fn func(p *models.UserProfile)) models.UserProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.snap.Users[chatID]
	if !ok {
		p = &models.UserProfile{ChatID: chatID}
		r.snap.Users[chatID] = p
	}
	fn(p)
	p.ChatID = chatID
	r.saveLocked(ctx)
	return *p
}

// ActiveTripCount counts the driver's trips departing now or later.
func (r *Registry) ActiveTripCount(driverID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeTripCountLocked(driverID, r.now())
}

func (r *Registry) activeTripCountLocked(driverID int64, now time.Time) int {
	n := 0
	for _, t := range r.snap.Trips {
		if t.DriverID == driverID && t.Active(now) {
			n++
		}
	}
	return n
}

// CreateTrip turns the driver's draft into a trip. The ceiling check and the
// insert happen under one lock. The draft is discarded either way.
func (r *Registry) CreateTrip(ctx context.Context, driverID int64, seats int) (models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	p, ok := r.snap.Users[driverID]
	if !ok {
		p = &models.UserProfile{ChatID: driverID}
		r.snap.Users[driverID] = p
	}
	draft := p.Draft
	p.Draft = models.Draft{}

	if r.activeTripCountLocked(driverID, now) >= r.maxActive {
		r.saveLocked(ctx)
		return models.Trip{}, ErrTripLimit
	}
	if seats < 0 {
		seats = 0
	}
	t := &models.Trip{
		ID:         r.snap.TripCounter,
		DriverID:   driverID,
		DriverName: p.Name,
		Car:        orDefault(draft.Car, "-"),
		Date:       orDefault(draft.Date, now.Format("02.01")),
		Time:       orDefault(draft.Time, now.Format("15:04")),
		Departure:  orDefault(draft.Departure, "-"),
		Arrival:    orDefault(draft.Arrival, "-"),
		Price:      draft.Price,
		Seats:      seats,
		Passengers: []int64{},
	}
	r.snap.Trips[t.ID] = t
	r.snap.TripCounter++
	r.saveLocked(ctx)
	return t.Clone(), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Trip returns a copy of the trip.
func (r *Registry) Trip(tripID int) (models.Trip, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.snap.Trips[tripID]
	if !ok {
		return models.Trip{}, false
	}
	return t.Clone(), true
}

// FindMatches scans all live trips for the passenger's route.
func (r *Registry) FindMatches(q matcher.Query) []models.Trip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return matcher.Filter(r.tripsLocked(func(*models.Trip) bool { return true }), q)
}

// DriverTrips lists the driver's trips ordered by id.
func (r *Registry) DriverTrips(driverID int64) []models.Trip {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.tripsLocked(func(t *models.Trip) bool { return t.DriverID == driverID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) tripsLocked(keep func(*models.Trip) bool) []models.Trip {
	out := make([]models.Trip, 0, len(r.snap.Trips))
	for _, t := range r.snap.Trips {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// PendingRequest returns the passenger currently waiting on the trip.
func (r *Registry) PendingRequest(tripID int) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, ok := r.snap.PendingRequests[tripID]
	return pid, ok
}

// Join records passengerID as the trip's pending requester, replacing any
// earlier unresolved request. ErrAlreadyRequested means the same passenger is
// already pending and nothing changed.
func (r *Registry) Join(ctx context.Context, tripID int, passengerID int64) (models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.snap.Trips[tripID]
	if !ok {
		return models.Trip{}, ErrTripNotFound
	}
	if pid, ok := r.snap.PendingRequests[tripID]; ok && pid == passengerID {
		return t.Clone(), ErrAlreadyRequested
	}
	r.snap.PendingRequests[tripID] = passengerID
	r.saveLocked(ctx)
	return t.Clone(), nil
}

type Outcome int

const (
	Reserved Outcome = iota
	NoSeats
	TripGone
)

func (o Outcome) String() string {
	switch o {
	case Reserved:
		return "reserved"
	case NoSeats:
		return "no_seats"
	case TripGone:
		return "trip_gone"
	default:
		return "unknown"
	}
}

type ConfirmResult struct {
	Outcome     Outcome
	PassengerID int64
	Trip        models.Trip
}

// Confirm resolves the trip's current pending request. It resolves against
// whoever is pending now, which may be a newer requester than the one the
// driver saw. The request is cleared in every branch.
func (r *Registry) Confirm(ctx context.Context, tripID int) (ConfirmResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, ok := r.snap.PendingRequests[tripID]
	if !ok {
		return ConfirmResult{}, ErrNoPendingRequest
	}
	delete(r.snap.PendingRequests, tripID)
	res := ConfirmResult{PassengerID: pid}

	t, ok := r.snap.Trips[tripID]
	switch {
	case !ok:
		res.Outcome = TripGone
	case t.HasPassenger(pid):
		res.Outcome = Reserved
		res.Trip = t.Clone()
	case t.Seats > 0:
		t.Passengers = append(t.Passengers, pid)
		t.Seats--
		res.Outcome = Reserved
		res.Trip = t.Clone()
	default:
		res.Outcome = NoSeats
		res.Trip = t.Clone()
	}
	r.saveLocked(ctx)
	return res, nil
}

// Reject drops the trip's pending request and returns the requester.
func (r *Registry) Reject(ctx context.Context, tripID int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, ok := r.snap.PendingRequests[tripID]
	if !ok {
		return 0, ErrNoPendingRequest
	}
	delete(r.snap.PendingRequests, tripID)
	r.saveLocked(ctx)
	return pid, nil
}

// Cancel releases passengerID's seat.
func (r *Registry) Cancel(ctx context.Context, tripID int, passengerID int64) (models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.snap.Trips[tripID]
	if !ok {
		return models.Trip{}, ErrTripNotFound
	}
	idx := -1
	for i, pid := range t.Passengers {
		if pid == passengerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return t.Clone(), ErrNotPassenger
	}
	t.Passengers = append(t.Passengers[:idx], t.Passengers[idx+1:]...)
	t.Seats++
	r.saveLocked(ctx)
	return t.Clone(), nil
}

// OwnedTrip returns the trip if actorID drives it.
func (r *Registry) OwnedTrip(tripID int, actorID int64) (models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownedLocked(tripID, actorID)
}

func (r *Registry) ownedLocked(tripID int, actorID int64) (models.Trip, error) {
	t, ok := r.snap.Trips[tripID]
	if !ok {
		return models.Trip{}, ErrTripNotFound
	}
	if t.DriverID != actorID {
		return models.Trip{}, ErrNotOwner
	}
	return t.Clone(), nil
}

// Delete removes the trip and its message binding. The returned copy carries
// the passengers to notify.
func (r *Registry) Delete(ctx context.Context, tripID int, actorID int64) (models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.ownedLocked(tripID, actorID)
	if err != nil {
		return models.Trip{}, err
	}
	delete(r.snap.Trips, tripID)
	delete(r.snap.DriverTripMessageIDs, tripID)
	r.saveLocked(ctx)
	return t, nil
}

// EditRoute replaces the trip's departure and arrival.
func (r *Registry) EditRoute(ctx context.Context, tripID int, actorID int64, departure, arrival string) (models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.ownedLocked(tripID, actorID); err != nil {
		return models.Trip{}, err
	}
	t := r.snap.Trips[tripID]
	t.Departure = departure
	t.Arrival = arrival
	r.saveLocked(ctx)
	return t.Clone(), nil
}

// BindMessage remembers which message shows the trip to its driver.
func (r *Registry) BindMessage(ctx context.Context, tripID, messageID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snap.Trips[tripID]; !ok {
		return
	}
	r.snap.DriverTripMessageIDs[tripID] = messageID
	r.saveLocked(ctx)
}

// MessageBinding returns the driver view message of a live trip.
func (r *Registry) MessageBinding(tripID int) (models.Trip, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.snap.Trips[tripID]
	if !ok {
		return models.Trip{}, 0, false
	}
	mid, ok := r.snap.DriverTripMessageIDs[tripID]
	if !ok {
		return models.Trip{}, 0, false
	}
	return t.Clone(), mid, true
}

// SweepExpired removes every trip whose departure is strictly in the past
// and returns them ordered by id. Nothing is written when nothing expired.
func (r *Registry) SweepExpired(ctx context.Context) []models.Trip {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var expired []models.Trip
	for id, t := range r.snap.Trips {
		if !t.Expired(now) {
			continue
		}
		expired = append(expired, t.Clone())
		delete(r.snap.Trips, id)
		delete(r.snap.DriverTripMessageIDs, id)
	}
	if len(expired) == 0 {
		return nil
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	r.saveLocked(ctx)
	return expired
}

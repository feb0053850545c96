package services

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/database"
	"github.com/tourlink/marketplace-backend/internal/metrics"
	"github.com/tourlink/marketplace-backend/internal/models"
	"github.com/tourlink/marketplace-backend/pkg/events"
)

// memDB emulates the PostgreSQL schema: one mutex stands in for row locks,
// the ledger map for the unique key, and snapshots for rollback.
type memDB struct {
	mu       sync.Mutex
	tours    map[uuid.UUID]models.Tour
	slots    map[uuid.UUID]models.TourDateSlot
	bookings map[uuid.UUID]models.Booking
	history  []models.BookingStatusChange
	agencies map[uuid.UUID]models.AgencyProfile
	plans    map[string]models.Plan
	ledger   map[string]models.PaymentLedgerEntry
	audits   []*models.PaymentAudit

	// applyDelay widens the race window inside RecordAndApply
	applyDelay time.Duration
}

func newMemDB() *memDB {
	return &memDB{
		tours:    map[uuid.UUID]models.Tour{},
		slots:    map[uuid.UUID]models.TourDateSlot{},
		bookings: map[uuid.UUID]models.Booking{},
		agencies: map[uuid.UUID]models.AgencyProfile{},
		plans:    map[string]models.Plan{},
		ledger:   map[string]models.PaymentLedgerEntry{},
	}
}

type memSnapshot struct {
	tours    map[uuid.UUID]models.Tour
	bookings map[uuid.UUID]models.Booking
	agencies map[uuid.UUID]models.AgencyProfile
}

func (db *memDB) snapshot() memSnapshot {
	snap := memSnapshot{
		tours:    make(map[uuid.UUID]models.Tour, len(db.tours)),
		bookings: make(map[uuid.UUID]models.Booking, len(db.bookings)),
		agencies: make(map[uuid.UUID]models.AgencyProfile, len(db.agencies)),
	}
	for k, v := range db.tours {
		snap.tours[k] = v
	}
	for k, v := range db.bookings {
		snap.bookings[k] = v
	}
	for k, v := range db.agencies {
		snap.agencies[k] = v
	}
	return snap
}

func (db *memDB) restore(snap memSnapshot) {
	db.tours = snap.tours
	db.bookings = snap.bookings
	db.agencies = snap.agencies
}

// ---- seeding helpers ----

func (db *memDB) addAgency(userID uuid.UUID) models.AgencyProfile {
	db.mu.Lock()
	defer db.mu.Unlock()
	agency := models.AgencyProfile{ID: uuid.New(), UserID: userID, Name: "Caribe Tours", Tier: models.AgencyTierFree}
	db.agencies[agency.ID] = agency
	return agency
}

func (db *memDB) addTour(agencyID uuid.UUID, price float64, currency string) models.Tour {
	db.mu.Lock()
	defer db.mu.Unlock()
	tour := models.Tour{
		ID:        uuid.New(),
		AgencyID:  agencyID,
		Title:     "Saona Island",
		Price:     price,
		Currency:  currency,
		Status:    models.TourStatusPublished,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	db.tours[tour.ID] = tour
	return tour
}

func (db *memDB) addSlot(tourID uuid.UUID, date time.Time, start *string, capacity *int) models.TourDateSlot {
	db.mu.Lock()
	defer db.mu.Unlock()
	slot := models.TourDateSlot{ID: uuid.New(), TourID: tourID, Date: date, StartTime: start, Capacity: capacity}
	db.slots[slot.ID] = slot
	return slot
}

func (db *memDB) addBooking(b models.Booking) models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	db.bookings[b.ID] = b
	return b
}

func (db *memDB) addPlan(slug string, planType models.PlanType, price float64, currency string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.plans[slug] = models.Plan{ID: uuid.New(), Slug: slug, Type: planType, Name: slug, Price: price, Currency: currency, Active: true}
}

func (db *memDB) updateTour(id uuid.UUID, fn func(*models.Tour)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	tour := db.tours[id]
	fn(&tour)
	db.tours[id] = tour
}

func (db *memDB) booking(id uuid.UUID) models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.bookings[id]
}

func (db *memDB) tour(id uuid.UUID) models.Tour {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tours[id]
}

func (db *memDB) agency(id uuid.UUID) models.AgencyProfile {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.agencies[id]
}

func (db *memDB) slot(id uuid.UUID) models.TourDateSlot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.slots[id]
}

func (db *memDB) ledgerSize() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.ledger)
}

func (db *memDB) auditsOf(eventType models.PaymentEventType) []*models.PaymentAudit {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*models.PaymentAudit
	for _, a := range db.audits {
		if a.EventType == eventType {
			out = append(out, a)
		}
	}
	return out
}

// ---- TourStore ----

type memTours struct{ *memDB }

func (s memTours) GetTourByID(_ context.Context, id uuid.UUID) (*models.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tour, ok := s.tours[id]
	if !ok {
		return nil, nil
	}
	return &tour, nil
}

func (s memTours) GetDateSlots(_ context.Context, tourID uuid.UUID) ([]models.TourDateSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := []models.TourDateSlot{}
	for _, slot := range s.slots {
		if slot.TourID == tourID {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Date.Equal(slots[j].Date) {
			return slots[i].Date.Before(slots[j].Date)
		}
		if slots[i].StartTime == nil || slots[j].StartTime == nil {
			return slots[i].StartTime == nil && slots[j].StartTime != nil
		}
		return *slots[i].StartTime < *slots[j].StartTime
	})
	return slots, nil
}

func (s memTours) ListPublishedWithAgency(_ context.Context) ([]models.TourListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var listings []models.TourListing
	for _, tour := range s.tours {
		if tour.Status != models.TourStatusPublished {
			continue
		}
		agency := s.agencies[tour.AgencyID]
		listings = append(listings, models.TourListing{Tour: tour, AgencyTier: agency.Tier, AgencyTierExpiresAt: agency.TierExpiresAt})
	}
	return listings, nil
}

// ---- BookingStore ----

type memBookings struct{ *memDB }

func (s memBookings) Create(_ context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if booking.SlotID != nil {
		slot := s.slots[*booking.SlotID]
		if !slot.HasRoom(booking.People) {
			return database.ErrSlotFull
		}
		slot.Booked += booking.People
		s.slots[slot.ID] = slot
	}
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	s.bookings[booking.ID] = *booking
	return nil
}

func (s memBookings) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	booking, ok := s.bookings[id]
	if !ok {
		return nil, nil
	}
	return &booking, nil
}

func (s memBookings) ListHistory(_ context.Context, bookingID uuid.UUID) ([]models.BookingStatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.BookingStatusChange{}
	for _, h := range s.history {
		if h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s memBookings) TransitionStatus(_ context.Context, booking *models.Booking, next models.BookingStatus, change *models.BookingStatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.bookings[booking.ID]
	if !ok || stored.Status != booking.Status {
		return database.ErrStaleState
	}
	stored.Status = next
	s.bookings[stored.ID] = stored
	s.history = append(s.history, *change)
	if next == models.BookingStatusCancelled && stored.SlotID != nil {
		slot := s.slots[*stored.SlotID]
		slot.Booked -= stored.People
		if slot.Booked < 0 {
			slot.Booked = 0
		}
		s.slots[slot.ID] = slot
	}
	return nil
}

func (s memBookings) SetPaymentStatus(_ context.Context, booking *models.Booking, next models.PaymentStatus, change *models.BookingStatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.bookings[booking.ID]
	if !ok {
		return database.ErrStaleState
	}
	if stored.PaidByVerifiedTransaction() {
		return database.ErrAlreadyPaid
	}
	for _, entry := range s.ledger {
		if entry.SubjectType == models.SubjectBooking && entry.SubjectID == stored.ID {
			return database.ErrAlreadyPaid
		}
	}
	if stored.PaymentStatus != booking.PaymentStatus {
		return database.ErrStaleState
	}
	stored.PaymentStatus = next
	s.bookings[stored.ID] = stored
	s.history = append(s.history, *change)
	return nil
}

func (s memBookings) SetReceiptURL(_ context.Context, bookingID uuid.UUID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.bookings[bookingID]
	if !ok || stored.PaymentStatus != models.PaymentStatusPending {
		return database.ErrStaleState
	}
	stored.PaymentReceiptURL = &url
	s.bookings[bookingID] = stored
	return nil
}

// ---- AgencyStore ----

type memAgencies struct{ *memDB }

func (s memAgencies) GetByID(_ context.Context, id uuid.UUID) (*models.AgencyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agency, ok := s.agencies[id]
	if !ok {
		return nil, nil
	}
	return &agency, nil
}

// ---- PlanCatalog ----

type memPlans struct{ *memDB }

func (s memPlans) GetBySlug(_ context.Context, slug string) (*models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[slug]
	if !ok || !plan.Active {
		return nil, nil
	}
	return &plan, nil
}

func (s memPlans) List(_ context.Context) ([]models.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Plan{}
	for _, plan := range s.plans {
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// ---- LedgerStore ----

type memLedger struct{ *memDB }

func (s memLedger) GetByTransactionID(_ context.Context, transactionID string) (*models.PaymentLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.ledger[transactionID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s memLedger) RecordAndApply(ctx context.Context, entry *models.PaymentLedgerEntry, apply database.ApplyFunc) (*models.PaymentLedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.ledger[entry.ExternalTransactionID]; ok {
		return &existing, true, nil
	}

	snap := s.snapshot()
	if s.applyDelay > 0 {
		time.Sleep(s.applyDelay)
	}
	expiresAt, err := apply(ctx, memTx{s.memDB})
	if err != nil {
		s.restore(snap)
		return nil, false, err
	}

	recorded := *entry
	recorded.EffectExpiresAt = expiresAt
	s.ledger[recorded.ExternalTransactionID] = recorded
	return &recorded, false, nil
}

// memTx runs with memDB.mu already held
type memTx struct{ *memDB }

func (t memTx) MarkBookingPaid(_ context.Context, bookingID uuid.UUID, transactionID string) error {
	booking, ok := t.bookings[bookingID]
	if !ok || booking.PaymentStatus != models.PaymentStatusPending || booking.PaidByVerifiedTransaction() {
		return database.ErrAlreadyPaid
	}
	booking.PaymentStatus = models.PaymentStatusPaid
	booking.ExternalTransactionID = &transactionID
	t.bookings[bookingID] = booking
	return nil
}

func (t memTx) ExtendTourPromotion(_ context.Context, tourID uuid.UUID, planSlug string, d models.PlanDuration, now time.Time) (time.Time, error) {
	tour, ok := t.tours[tourID]
	if !ok {
		return time.Time{}, database.ErrNotFound
	}
	expiresAt := models.ExtendFrom(now, tour.FeaturedExpiresAt, d)
	tour.FeaturedPlan = &planSlug
	tour.FeaturedExpiresAt = &expiresAt
	t.tours[tourID] = tour
	return expiresAt, nil
}

func (t memTx) ExtendAgencyMembership(_ context.Context, agencyID uuid.UUID, d models.PlanDuration, now time.Time) (time.Time, error) {
	agency, ok := t.agencies[agencyID]
	if !ok {
		return time.Time{}, database.ErrNotFound
	}
	expiresAt := models.ExtendFrom(now, agency.TierExpiresAt, d)
	agency.Tier = models.AgencyTierPro
	agency.TierExpiresAt = &expiresAt
	t.agencies[agencyID] = agency
	return expiresAt, nil
}

// ---- AuditStore ----

type memAudits struct{ *memDB }

func (s memAudits) Log(_ context.Context, audit *models.PaymentAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, audit)
	return nil
}

func (s memAudits) GetAmountMismatches(_ context.Context, limit int) ([]*models.PaymentAudit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.PaymentAudit{}
	for i := len(s.audits) - 1; i >= 0 && len(out) < limit; i-- {
		if s.audits[i].EventType == models.PaymentEventMismatch && s.audits[i].ResolvedAt == nil {
			out = append(out, s.audits[i])
		}
	}
	return out, nil
}

func (s memAudits) CountUnresolved(ctx context.Context) (int, error) {
	open, _ := s.GetAmountMismatches(ctx, 1<<30)
	return len(open), nil
}

func (s memAudits) HasOpenMismatch(_ context.Context, transactionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.audits {
		if a.ExternalTransactionID == transactionID && a.EventType == models.PaymentEventMismatch && a.ResolvedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (s memAudits) Resolve(_ context.Context, auditID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.audits {
		if a.ID == auditID && a.EventType == models.PaymentEventMismatch && a.ResolvedAt == nil {
			now := time.Now()
			a.ResolvedAt = &now
			return nil
		}
	}
	return database.ErrStaleState
}

// ---- collaborators ----

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// testEnv wires every service against one memDB
type testEnv struct {
	db        *memDB
	now       time.Time
	publisher *recordingPublisher
	metrics   *metrics.Metrics
	bookings  *BookingService
	payments  *PaymentService
	listings  *ListingService
}

func newTestEnv(now time.Time) *testEnv {
	db := newMemDB()
	publisher := &recordingPublisher{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	clock := fixedClock(now)
	logger := quietLogger()

	rates := NewStaticRateProvider(map[string]float64{"DOP:USD": 1.0 / 58})

	return &testEnv{
		db:        db,
		now:       now,
		publisher: publisher,
		metrics:   m,
		bookings: NewBookingService(memTours{db}, memBookings{db}, memAgencies{db}, publisher, m, clock,
			BookingServiceConfig{MaxPartySize: 50, Location: time.UTC}, logger),
		payments: NewPaymentService(memBookings{db}, memTours{db}, memAgencies{db}, memPlans{db}, memLedger{db}, memAudits{db},
			rates, publisher, m, clock, DefaultPaymentServiceConfig(), logger),
		listings: NewListingService(memTours{db}, memPlans{db}, clock, logger),
	}
}

func traveler() models.Actor {
	return models.Actor{UserID: uuid.New(), Role: models.RoleUser}
}

func agencyUser() models.Actor {
	return models.Actor{UserID: uuid.New(), Role: models.RoleAgency}
}

func admin() models.Actor {
	return models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

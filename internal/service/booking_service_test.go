package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Leganyst/cleaning-platform/internal/apperror"
	"github.com/Leganyst/cleaning-platform/internal/calendar"
	"github.com/Leganyst/cleaning-platform/internal/coverage"
	"github.com/Leganyst/cleaning-platform/internal/estimate"
	"github.com/Leganyst/cleaning-platform/internal/geo"
	"github.com/Leganyst/cleaning-platform/internal/lifecycle"
	"github.com/Leganyst/cleaning-platform/internal/matching"
	"github.com/Leganyst/cleaning-platform/internal/model"
	"github.com/Leganyst/cleaning-platform/internal/notify"
	"github.com/Leganyst/cleaning-platform/internal/pool"
	"github.com/Leganyst/cleaning-platform/internal/repository"
)

// 15.01.2025 10:00 UTC — среда.
var wednesdayMorning = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []notify.Change
}

func (r *recordingNotifier) Notify(_ context.Context, c notify.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *recordingNotifier) statuses() []model.BookingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.BookingStatus, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.To)
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	svc        *BookingService
	db         *gorm.DB
	notifier   *recordingNotifier
	dispatcher *notify.Dispatcher
	clock      *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	clk := &clock{now: wednesdayMorning.Add(-48 * time.Hour)}
	rec := &recordingNotifier{}
	dispatcher := notify.NewDispatcher(rec, time.Second, nil)
	svc := newInstance(db, clk, dispatcher, false)
	return &fixture{svc: svc, db: db, notifier: rec, dispatcher: dispatcher, clock: clk}
}

// newInstance собирает экземпляр сервиса над db со своими индексом, пулом и блокировками.
func newInstance(db *gorm.DB, clk *clock, dispatcher *notify.Dispatcher, shared bool) *BookingService {
	bookings := repository.NewGormBookingRepository(db)
	providers := repository.NewGormProviderRepository(db)

	distance := geo.NewStaticDistance(map[string]geo.Point{
		"10115": {Lat: 52.5323, Lon: 13.3846},
		"10117": {Lat: 52.5170, Lon: 13.3889},
		"80331": {Lat: 48.1372, Lon: 11.5755},
	})
	index := coverage.NewIndex(distance, time.UTC)
	matcher := matching.NewMatcher(index, bookings, matching.Config{Timeout: time.Second}, nil)
	machine := lifecycle.NewMachine(matcher, clk.Now)

	return NewBookingService(Deps{
		Bookings:   bookings,
		Providers:  providers,
		Index:      index,
		Matcher:    matcher,
		Machine:    machine,
		Pool:       pool.New(machine, bookings, time.Second, nil),
		Notifier:   dispatcher,
		SharedPool: shared,
		Timeout:    time.Second,
	})
}

func pendingPage(t *testing.T, svc *BookingService, f pool.Filter) calendar.Page[model.Booking] {
	t.Helper()
	page, err := svc.ListPending(context.Background(), f, 1, 50)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	return page
}

func listed(page calendar.Page[model.Booking], id uuid.UUID) bool {
	for _, b := range page.Items {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (f *fixture) addProvider(t *testing.T, name, postal string, rating float64) model.Provider {
	t.Helper()
	p, err := f.svc.UpsertProvider(context.Background(), model.Provider{
		Name:         name,
		Active:       true,
		Rating:       rating,
		ServiceAreas: []model.ServiceArea{{PostalCode: postal, TravelDistanceKm: 5}},
		Availability: []model.AvailabilityWindow{{
			Weekday:  time.Wednesday,
			StartsAt: datatypes.NewTime(8, 0, 0, 0),
			EndsAt:   datatypes.NewTime(18, 0, 0, 0),
		}},
		Skills: []model.ProviderSkill{{ServiceType: model.ServiceTypeRegular}},
	})
	if err != nil {
		t.Fatalf("UpsertProvider(%s): %v", name, err)
	}
	return p
}

func (f *fixture) createBooking(t *testing.T) model.Booking {
	t.Helper()
	b, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
		CustomerID:  uuid.New(),
		ServiceType: model.ServiceTypeRegular,
		ScheduledAt: wednesdayMorning,
		PostalCode:  "10115",
		Address:     "Invalidenstr. 1",
		Property: &estimate.Input{
			PropertySizeM2:       70,
			Bedrooms:             2,
			Bathrooms:            1,
			DirtinessLevel:       1,
			MonthsSinceLastClean: 1,
		},
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	return b
}

func (f *fixture) waitNotifications(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.dispatcher.Wait(ctx); err != nil {
		t.Fatalf("wait notifications: %v", err)
	}
}

func TestCreateBooking_EstimatesPricesAndPools(t *testing.T) {
	f := newFixture(t)
	b := f.createBooking(t)

	if b.Status != model.BookingStatusPending {
		t.Fatalf("status = %s, want pending", b.Status)
	}
	if !b.DurationHours.Equal(decimal.RequireFromString("3.5")) {
		t.Fatalf("duration = %s, want 3.5", b.DurationHours)
	}
	// regular: 25 в час.
	if !b.TotalPrice.Equal(decimal.RequireFromString("87.5")) {
		t.Fatalf("price = %s, want 87.5", b.TotalPrice)
	}

	page := pendingPage(t, f.svc, pool.Filter{})
	if page.Total != 1 || page.Items[0].ID != b.ID {
		t.Fatalf("pool page = %+v, want the new booking", page)
	}

	stored, err := f.svc.GetBooking(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if stored.Version != 1 {
		t.Fatalf("stored version = %d, want 1", stored.Version)
	}

	events, err := f.svc.History(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 1 || events[0].EventType != model.EventTypeBookingCreated {
		t.Fatalf("history = %+v, want single booking_created", events)
	}
}

func TestCreateBooking_RequiresDurationOrProperty(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
		CustomerID:  uuid.New(),
		ServiceType: model.ServiceTypeRegular,
		ScheduledAt: wednesdayMorning,
		PostalCode:  "10115",
		Address:     "Invalidenstr. 1",
	})
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestCreateBooking_CustomerCannotBookForOthers(t *testing.T) {
	f := newFixture(t)
	hours := decimal.NewFromInt(2)
	_, err := f.svc.CreateBooking(context.Background(), CreateBookingInput{
		CustomerID:    uuid.New(),
		ServiceType:   model.ServiceTypeRegular,
		ScheduledAt:   wednesdayMorning,
		PostalCode:    "10115",
		Address:       "Invalidenstr. 1",
		DurationHours: &hours,
		Actor:         lifecycle.Actor{ID: uuid.New(), Role: lifecycle.RoleCustomer},
	})
	if !apperror.Is(err, apperror.KindForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestBookingLifecycle_HappyPath(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "Anna", "10115", 4.8)
	b := f.createBooking(t)
	ctx := context.Background()

	matches, err := f.svc.MatchForBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("MatchForBooking: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != p.ID {
		t.Fatalf("matches = %+v, want provider %s", matches, p.ID)
	}

	providerActor := lifecycle.Actor{ID: p.ID, Role: lifecycle.RoleProvider}
	assigned, err := f.svc.ClaimBooking(ctx, b.ID, p.ID, providerActor)
	if err != nil {
		t.Fatalf("ClaimBooking: %v", err)
	}
	if assigned.Status != model.BookingStatusAssigned || assigned.ProviderID == nil || *assigned.ProviderID != p.ID {
		t.Fatalf("assigned = %+v", assigned)
	}
	if pendingPage(t, f.svc, pool.Filter{}).Total != 0 {
		t.Fatalf("claimed booking is still in the pool")
	}

	confirmed, err := f.svc.Transition(ctx, b.ID, lifecycle.EventProviderConfirms, lifecycle.Payload{Actor: providerActor})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != model.BookingStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", confirmed.Status)
	}

	// Рано завершать: время работ ещё не наступило.
	if _, err := f.svc.Transition(ctx, b.ID, lifecycle.EventComplete, lifecycle.Payload{Actor: providerActor}); !apperror.Is(err, apperror.KindInvalidTransition) {
		t.Fatalf("early complete err = %v, want invalid_transition", err)
	}

	f.clock.Set(wednesdayMorning.Add(4 * time.Hour))
	completed, err := f.svc.Transition(ctx, b.ID, lifecycle.EventComplete, lifecycle.Payload{Actor: providerActor})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != model.BookingStatusCompleted || completed.Version != 4 {
		t.Fatalf("completed = %s v%d, want completed v4", completed.Status, completed.Version)
	}

	if _, err := f.svc.Transition(ctx, b.ID, lifecycle.EventCancel, lifecycle.Payload{}); !apperror.Is(err, apperror.KindInvalidTransition) {
		t.Fatalf("cancel after complete err = %v, want invalid_transition", err)
	}

	f.waitNotifications(t)
	got := f.notifier.statuses()
	want := []model.BookingStatus{
		model.BookingStatusPending,
		model.BookingStatusAssigned,
		model.BookingStatusConfirmed,
		model.BookingStatusCompleted,
	}
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	seen := map[model.BookingStatus]bool{}
	for _, s := range got {
		seen[s] = true
	}
	for _, s := range want {
		if !seen[s] {
			t.Fatalf("notifications = %v, missing %s", got, s)
		}
	}

	events, err := f.svc.History(ctx, b.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("history len = %d, want 4", len(events))
	}
}

func TestTransition_RejectReturnsToPool(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "Anna", "10115", 4.8)
	b := f.createBooking(t)
	ctx := context.Background()

	if _, err := f.svc.Transition(ctx, b.ID, lifecycle.EventAssignProvider, lifecycle.Payload{ProviderID: &p.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	back, err := f.svc.Transition(ctx, b.ID, lifecycle.EventProviderRejects, lifecycle.Payload{
		Actor:  lifecycle.Actor{ID: p.ID, Role: lifecycle.RoleProvider},
		Reason: "sick",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if back.Status != model.BookingStatusPending || back.ProviderID != nil {
		t.Fatalf("after reject = %s provider=%v, want pending without provider", back.Status, back.ProviderID)
	}
	page := pendingPage(t, f.svc, pool.Filter{})
	if page.Total != 1 || page.Items[0].Version != back.Version {
		t.Fatalf("pool = %+v, want booking v%d", page, back.Version)
	}
}

func TestTransition_CancelPendingLeavesPool(t *testing.T) {
	f := newFixture(t)
	b := f.createBooking(t)

	cancelled, err := f.svc.Transition(context.Background(), b.ID, lifecycle.EventCancel, lifecycle.Payload{
		Actor:  lifecycle.Actor{ID: b.CustomerID, Role: lifecycle.RoleCustomer},
		Reason: "plans changed",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.BookingStatusCancelled || cancelled.CancelReason != "plans changed" {
		t.Fatalf("cancelled = %+v", cancelled)
	}
	if pendingPage(t, f.svc, pool.Filter{}).Total != 0 {
		t.Fatalf("cancelled booking is still in the pool")
	}

	_, err = f.svc.ClaimBooking(context.Background(), b.ID, uuid.New(), lifecycle.Actor{})
	if !apperror.Is(err, apperror.KindInvalidTransition) {
		t.Fatalf("claim cancelled err = %v, want invalid_transition", err)
	}
}

func TestClaimBooking_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	providers := []model.Provider{
		f.addProvider(t, "A", "10115", 4.1),
		f.addProvider(t, "B", "10115", 4.2),
		f.addProvider(t, "C", "10117", 4.3),
		f.addProvider(t, "D", "10115", 4.4),
	}
	b := f.createBooking(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		conflict int
		winner   uuid.UUID
	)
	for _, p := range providers {
		wg.Add(1)
		go func(p model.Provider) {
			defer wg.Done()
			_, err := f.svc.ClaimBooking(context.Background(), b.ID, p.ID, lifecycle.Actor{ID: p.ID, Role: lifecycle.RoleProvider})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
				winner = p.ID
			case apperror.Is(err, apperror.KindClaimAlreadyAssigned):
				conflict++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}(p)
	}
	wg.Wait()

	if wins != 1 || conflict != len(providers)-1 {
		t.Fatalf("wins=%d conflicts=%d, want 1/%d", wins, conflict, len(providers)-1)
	}
	stored, err := f.svc.GetBooking(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if stored.Status != model.BookingStatusAssigned || stored.Version != 2 {
		t.Fatalf("stored = %s v%d, want assigned v2", stored.Status, stored.Version)
	}
	if stored.ProviderID == nil || *stored.ProviderID != winner {
		t.Fatalf("stored provider = %v, want winner %s", stored.ProviderID, winner)
	}
	if listed(pendingPage(t, f.svc, pool.Filter{}), b.ID) {
		t.Fatalf("claimed booking is still in the pool")
	}
}

func TestClaimBooking_IneligibleProvider(t *testing.T) {
	f := newFixture(t)
	far := f.addProvider(t, "Far", "80331", 4.9)
	b := f.createBooking(t)

	_, err := f.svc.ClaimBooking(context.Background(), b.ID, far.ID, lifecycle.Actor{ID: far.ID, Role: lifecycle.RoleProvider})
	if !apperror.Is(err, apperror.KindClaimNotEligible) {
		t.Fatalf("err = %v, want not_eligible", err)
	}
	// Заказ остаётся доступным остальным.
	if pendingPage(t, f.svc, pool.Filter{}).Total != 1 {
		t.Fatalf("booking left the pool after failed claim")
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetBooking(context.Background(), uuid.New())
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestRestorePoolAndReloadProviders(t *testing.T) {
	f := newFixture(t)
	f.addProvider(t, "Anna", "10115", 4.8)
	b := f.createBooking(t)

	// Новый экземпляр сервиса над той же базой.
	svc := newInstance(f.db, f.clock, nil, false)

	n, err := svc.ReloadProviders(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("ReloadProviders = %d, %v; want 1", n, err)
	}
	n, err = svc.RestorePool(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("RestorePool = %d, %v; want 1", n, err)
	}
	page := pendingPage(t, svc, pool.Filter{PostalPrefix: "101"})
	if page.Total != 1 || page.Items[0].ID != b.ID {
		t.Fatalf("restored pool = %+v", page)
	}
}

func TestUpsertProvider_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpsertProvider(context.Background(), model.Provider{Name: "X", Rating: 7})
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

// checkPool сверяет членство в пуле со статусом в хранилище.
func (f *fixture) checkPool(t *testing.T, step string, id uuid.UUID, want model.BookingStatus) {
	t.Helper()
	stored, err := f.svc.GetBooking(context.Background(), id)
	if err != nil {
		t.Fatalf("%s: GetBooking: %v", step, err)
	}
	if stored.Status != want {
		t.Fatalf("%s: status = %s, want %s", step, stored.Status, want)
	}
	inPool := listed(pendingPage(t, f.svc, pool.Filter{}), id)
	if inPool != (stored.Status == model.BookingStatusPending) {
		t.Fatalf("%s: in pool = %v with status %s", step, inPool, stored.Status)
	}
}

func TestPoolMembershipFollowsStatusOnEveryEdge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	anna := f.addProvider(t, "Anna", "10115", 4.8)
	ben := f.addProvider(t, "Ben", "10115", 4.5)
	annaActor := lifecycle.Actor{ID: anna.ID, Role: lifecycle.RoleProvider}
	benActor := lifecycle.Actor{ID: ben.ID, Role: lifecycle.RoleProvider}
	system := lifecycle.Actor{}

	type step struct {
		name    string
		do      func(id uuid.UUID) error
		wantErr apperror.Kind
		want    model.BookingStatus
	}
	claim := func(p uuid.UUID, a lifecycle.Actor) func(uuid.UUID) error {
		return func(id uuid.UUID) error {
			_, err := f.svc.ClaimBooking(ctx, id, p, a)
			return err
		}
	}
	event := func(e lifecycle.Event, p lifecycle.Payload) func(uuid.UUID) error {
		return func(id uuid.UUID) error {
			_, err := f.svc.Transition(ctx, id, e, p)
			return err
		}
	}

	flows := map[string][]step{
		"full path": {
			{"reject while pending", event(lifecycle.EventProviderRejects, lifecycle.Payload{Actor: benActor}), "", model.BookingStatusPending},
			{"claim", claim(anna.ID, annaActor), "", model.BookingStatusAssigned},
			{"second claim", claim(ben.ID, benActor), apperror.KindClaimAlreadyAssigned, model.BookingStatusAssigned},
			{"reject assigned", event(lifecycle.EventProviderRejects, lifecycle.Payload{Actor: annaActor}), "", model.BookingStatusPending},
			{"assign by system", event(lifecycle.EventAssignProvider, lifecycle.Payload{ProviderID: &ben.ID, Actor: system}), "", model.BookingStatusAssigned},
			{"confirm by other provider", event(lifecycle.EventProviderConfirms, lifecycle.Payload{Actor: annaActor}), apperror.KindForbidden, model.BookingStatusAssigned},
			{"confirm", event(lifecycle.EventProviderConfirms, lifecycle.Payload{Actor: benActor}), "", model.BookingStatusConfirmed},
			{"reject confirmed", event(lifecycle.EventProviderRejects, lifecycle.Payload{Actor: benActor}), apperror.KindInvalidTransition, model.BookingStatusConfirmed},
			{"complete too early", event(lifecycle.EventComplete, lifecycle.Payload{Actor: benActor}), apperror.KindInvalidTransition, model.BookingStatusConfirmed},
			{"claim confirmed", claim(anna.ID, annaActor), apperror.KindClaimAlreadyAssigned, model.BookingStatusConfirmed},
		},
		"cancel pending": {
			{"confirm pending", event(lifecycle.EventProviderConfirms, lifecycle.Payload{Actor: system}), apperror.KindInvalidTransition, model.BookingStatusPending},
			{"cancel", event(lifecycle.EventCancel, lifecycle.Payload{Actor: system}), "", model.BookingStatusCancelled},
			{"claim cancelled", claim(anna.ID, annaActor), apperror.KindInvalidTransition, model.BookingStatusCancelled},
			{"reject cancelled", event(lifecycle.EventProviderRejects, lifecycle.Payload{Actor: system}), apperror.KindInvalidTransition, model.BookingStatusCancelled},
		},
		"cancel assigned": {
			{"claim", claim(anna.ID, annaActor), "", model.BookingStatusAssigned},
			{"cancel by provider", event(lifecycle.EventCancel, lifecycle.Payload{Actor: annaActor}), apperror.KindForbidden, model.BookingStatusAssigned},
			{"cancel", event(lifecycle.EventCancel, lifecycle.Payload{Actor: system}), "", model.BookingStatusCancelled},
		},
		"cancel confirmed": {
			{"claim", claim(ben.ID, benActor), "", model.BookingStatusAssigned},
			{"confirm", event(lifecycle.EventProviderConfirms, lifecycle.Payload{Actor: benActor}), "", model.BookingStatusConfirmed},
			{"cancel", event(lifecycle.EventCancel, lifecycle.Payload{Actor: system}), "", model.BookingStatusCancelled},
			{"confirm cancelled", event(lifecycle.EventProviderConfirms, lifecycle.Payload{Actor: system}), apperror.KindInvalidTransition, model.BookingStatusCancelled},
		},
	}

	ids := map[string]uuid.UUID{}
	for _, name := range []string{"full path", "cancel pending", "cancel assigned", "cancel confirmed"} {
		b := f.createBooking(t)
		ids[name] = b.ID
		f.checkPool(t, name+": create", b.ID, model.BookingStatusPending)

		for _, st := range flows[name] {
			label := name + ": " + st.name
			err := st.do(b.ID)
			switch {
			case st.wantErr == "" && err != nil:
				t.Fatalf("%s: %v", label, err)
			case st.wantErr != "" && !apperror.Is(err, st.wantErr):
				t.Fatalf("%s: err = %v, want %s", label, err, st.wantErr)
			}
			f.checkPool(t, label, b.ID, st.want)
		}
	}

	// Завершение и попытки после него.
	id := ids["full path"]
	f.clock.Set(wednesdayMorning.Add(4 * time.Hour))
	if _, err := f.svc.Transition(ctx, id, lifecycle.EventComplete, lifecycle.Payload{Actor: benActor}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	f.checkPool(t, "complete", id, model.BookingStatusCompleted)
	if _, err := f.svc.Transition(ctx, id, lifecycle.EventCancel, lifecycle.Payload{}); !apperror.Is(err, apperror.KindInvalidTransition) {
		t.Fatalf("cancel completed err = %v, want invalid_transition", err)
	}
	if _, err := f.svc.ClaimBooking(ctx, id, anna.ID, annaActor); !apperror.Is(err, apperror.KindClaimAlreadyAssigned) {
		t.Fatalf("claim completed err = %v, want already_assigned", err)
	}
	f.checkPool(t, "after completed", id, model.BookingStatusCompleted)
}

func TestSharedPool_SeesChangesFromOtherInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := newInstance(f.db, f.clock, nil, true)
	p := f.addProvider(t, "Anna", "10115", 4.8)
	early := f.createBooking(t)

	// Второй экземпляр над той же базой поднимается после создания early.
	b := newInstance(f.db, f.clock, nil, true)
	if _, err := b.ReloadProviders(ctx); err != nil {
		t.Fatalf("ReloadProviders: %v", err)
	}
	if _, err := b.RestorePool(ctx); err != nil {
		t.Fatalf("RestorePool: %v", err)
	}
	if _, err := a.ReloadProviders(ctx); err != nil {
		t.Fatalf("ReloadProviders: %v", err)
	}

	if _, err := a.ClaimBooking(ctx, early.ID, p.ID, lifecycle.Actor{ID: p.ID, Role: lifecycle.RoleProvider}); err != nil {
		t.Fatalf("claim on a: %v", err)
	}
	late, err := a.CreateBooking(ctx, CreateBookingInput{
		CustomerID:    uuid.New(),
		ServiceType:   model.ServiceTypeRegular,
		ScheduledAt:   wednesdayMorning.Add(2 * time.Hour),
		PostalCode:    "10117",
		Address:       "Unter den Linden 5",
		DurationHours: func() *decimal.Decimal { d := decimal.NewFromInt(2); return &d }(),
	})
	if err != nil {
		t.Fatalf("create on a: %v", err)
	}

	page := pendingPage(t, b, pool.Filter{})
	if listed(page, early.ID) {
		t.Fatalf("instance b still lists the booking claimed on a")
	}
	if !listed(page, late.ID) || page.Total != 1 {
		t.Fatalf("instance b pool = %+v, want only the booking created on a", page.Items)
	}

	if _, err := b.ClaimBooking(ctx, early.ID, p.ID, lifecycle.Actor{}); !apperror.Is(err, apperror.KindClaimAlreadyAssigned) {
		t.Fatalf("claim on b err = %v, want already_assigned", err)
	}

	if _, err := a.Transition(ctx, late.ID, lifecycle.EventCancel, lifecycle.Payload{}); err != nil {
		t.Fatalf("cancel on a: %v", err)
	}
	if pendingPage(t, b, pool.Filter{}).Total != 0 {
		t.Fatalf("instance b lists a booking cancelled on a")
	}
}

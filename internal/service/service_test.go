package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/queue"
	"github.com/iliyamo/surplus-market/internal/repository/memory"
)

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	rbac     *RBACManager
	accounts *AccountService
	bundles  *BundleRegistry
	engine   *ReservationEngine
	streaks  *StreakService
	sessions *SessionService
	events   *queue.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	log := zerolog.Nop()
	f := &fixture{
		ctx:      context.Background(),
		store:    store,
		rbac:     NewRBACManager(store, log),
		accounts: NewAccountService(store, bcrypt.MinCost, log),
		bundles:  NewBundleRegistry(store, log),
		streaks:  NewStreakService(store, log),
		sessions: NewSessionService(store, "secret", 5, 1, log),
		events:   &queue.Recorder{},
	}
	f.engine = NewReservationEngine(store, f.events, log)
	if err := f.rbac.SeedDefaults(f.ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return f
}

func (f *fixture) seller(t *testing.T, email string) *model.Account {
	t.Helper()
	acc, err := f.accounts.Register(f.ctx, RegisterInput{
		Email: email, Password: "password1", Kind: "seller", DisplayName: "Corner Bakery", Address: "1 High St",
	})
	if err != nil {
		t.Fatalf("register seller: %v", err)
	}
	return acc
}

func (f *fixture) customer(t *testing.T, email, username string) *model.Account {
	t.Helper()
	acc, err := f.accounts.Register(f.ctx, RegisterInput{
		Email: email, Password: "password1", Kind: "customer", Username: username,
	})
	if err != nil {
		t.Fatalf("register customer: %v", err)
	}
	return acc
}

func (f *fixture) bundle(t *testing.T, sellerID uint64, title string) *model.Bundle {
	t.Helper()
	b, err := f.bundles.Create(f.ctx, BundleInput{
		Status: "available", Title: title, Details: "day old loaves",
		RetailPrice: "10.00", DiscountedPrice: "5.00", SellerID: sellerID,
	})
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	return b
}

func (f *fixture) reserve(t *testing.T, bundleID, customerID uint64) *model.Reservation {
	t.Helper()
	res, err := f.engine.Create(f.ctx, ReservationInput{BundleID: bundleID, PurchaserID: customerID, Status: "active"})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return res
}

func (f *fixture) bundleStatus(t *testing.T, id uint64) model.BundleStatus {
	t.Helper()
	b, err := f.bundles.Load(f.ctx, id)
	if err != nil {
		t.Fatalf("load bundle: %v", err)
	}
	return b.Status
}

func wrongCode(code string) string {
	if strings.HasPrefix(code, "0") {
		return "1" + code[1:]
	}
	return "0" + code[1:]
}

func TestGenerateClaimCodeDeterministic(t *testing.T) {
	a := GenerateClaimCode(12, 34, "Bread bag")
	if a != GenerateClaimCode(12, 34, "Bread bag") {
		t.Fatal("same inputs must give the same code")
	}
	if len(a) != model.ClaimCodeLength {
		t.Fatalf("len = %d", len(a))
	}
	if a == GenerateClaimCode(13, 34, "Bread bag") || a == GenerateClaimCode(12, 34, "Cake box") {
		t.Error("different inputs should give different codes")
	}
	if !claimCodeMatches(a, a) || claimCodeMatches(a, wrongCode(a)) || claimCodeMatches(a, a[:15]) {
		t.Error("claim code comparison is not exact")
	}
}

func TestBundleCreateRequiresAllFields(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	full := BundleInput{Status: "available", Title: "Bag", Details: "d", RetailPrice: "10.00", DiscountedPrice: "5.00", SellerID: s.ID}
	blanks := []func(*BundleInput){
		func(in *BundleInput) { in.Status = "" },
		func(in *BundleInput) { in.Title = "   " },
		func(in *BundleInput) { in.Details = "" },
		func(in *BundleInput) { in.RetailPrice = "" },
		func(in *BundleInput) { in.DiscountedPrice = "" },
		func(in *BundleInput) { in.SellerID = 0 },
	}
	for i, blank := range blanks {
		in := full
		blank(&in)
		if _, err := f.bundles.Create(f.ctx, in); !errors.Is(err, model.ErrMissingValues) {
			t.Errorf("case %d: got %v, want ErrMissingValues", i, err)
		}
	}
	b, err := f.bundles.Create(f.ctx, full)
	if err != nil || b.ID == 0 || b.Status != model.BundleAvailable || b.RetailPrice != 1000 || b.DiscountedPrice != 500 {
		t.Fatalf("create = %+v, %v", b, err)
	}
}

func TestBundleCreateValidation(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")
	base := BundleInput{Status: "available", Title: "Bag", Details: "d", RetailPrice: "10.00", DiscountedPrice: "5.00", SellerID: s.ID}

	in := base
	in.DiscountedPrice = "10.00"
	if _, err := f.bundles.Create(f.ctx, in); !errors.Is(err, model.ErrPersistence) {
		t.Errorf("discount == retail: got %v", err)
	}
	in = base
	in.Status = "reserved"
	if _, err := f.bundles.Create(f.ctx, in); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("reserved on create: got %v", err)
	}
	in = base
	in.Title = strings.Repeat("x", model.MaxTitleLength+1)
	if _, err := f.bundles.Create(f.ctx, in); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("long title: got %v", err)
	}
	in = base
	in.RetailPrice = "10.001"
	if _, err := f.bundles.Create(f.ctx, in); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("three decimals: got %v", err)
	}
	in = base
	in.SellerID = c.ID
	if _, err := f.bundles.Create(f.ctx, in); !errors.Is(err, model.ErrNoSuchSeller) {
		t.Errorf("customer as seller: got %v", err)
	}
}

func TestBundleUpdate(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	b := f.bundle(t, s.ID, "Bag")

	if _, err := f.bundles.Update(f.ctx, b.ID, map[string]any{}); !errors.Is(err, model.ErrMissingValues) {
		t.Errorf("empty update: %v", err)
	}
	if _, err := f.bundles.Update(f.ctx, b.ID, map[string]any{"seller_id": 9}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("disallowed key: %v", err)
	}
	if _, err := f.bundles.Update(f.ctx, 999, map[string]any{"title": "x"}); !errors.Is(err, model.ErrNoSuchBundle) {
		t.Errorf("missing bundle: %v", err)
	}
	if _, err := f.bundles.Update(f.ctx, b.ID, map[string]any{"retail_price": "4.00"}); !errors.Is(err, model.ErrPersistence) {
		t.Errorf("retail below discount: %v", err)
	}
	if _, err := f.bundles.Update(f.ctx, b.ID, map[string]any{"status": "reserved"}); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("direct reserve: %v", err)
	}

	got, err := f.bundles.Update(f.ctx, b.ID, map[string]any{"title": "Big bag", "retail_price": "12.50"})
	if err != nil || got.Title != "Big bag" || got.RetailPrice != 1250 {
		t.Fatalf("update = %+v, %v", got, err)
	}
	got, err = f.bundles.Update(f.ctx, b.ID, map[string]any{"status": "expired"})
	if err != nil || got.Status != model.BundleExpired {
		t.Fatalf("expire = %+v, %v", got, err)
	}
	if _, err := f.bundles.Update(f.ctx, b.ID, map[string]any{"status": "available"}); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expired is terminal: %v", err)
	}
}

func TestBundleExistsAndDelete(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	b := f.bundle(t, s.ID, "Bag")

	if ok, err := f.bundles.ExistsWithID(f.ctx, b.ID); !ok || err != nil {
		t.Fatalf("exists = %v, %v", ok, err)
	}
	if err := f.bundles.Delete(f.ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, err := f.bundles.ExistsWithID(f.ctx, b.ID); ok || err != nil {
		t.Fatalf("exists after delete = %v, %v", ok, err)
	}
	if _, err := f.bundles.Load(f.ctx, b.ID); !errors.Is(err, model.ErrNoSuchBundle) {
		t.Errorf("load after delete: %v", err)
	}
	if err := f.bundles.Delete(f.ctx, b.ID); !errors.Is(err, model.ErrNoSuchBundle) {
		t.Errorf("second delete: %v", err)
	}
}

func TestBundleSearch(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	f.bundle(t, s.ID, "Sourdough bag")
	nuts, err := f.bundles.Create(f.ctx, BundleInput{
		Status: "available", Title: "Walnut loaf", Details: "d", RetailPrice: "8.00", DiscountedPrice: "3.00",
		SellerID: s.ID, Allergens: []string{"Nuts"},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.bundles.Search(f.ctx, model.BundleQuery{ExcludeAllergens: []string{"nuts"}})
	if err != nil || res.Total != 1 || res.Items[0].Title != "Sourdough bag" {
		t.Fatalf("allergen filter = %+v, %v", res, err)
	}
	res, err = f.bundles.Search(f.ctx, model.BundleQuery{Title: "WALNUT"})
	if err != nil || res.Total != 1 || res.Items[0].ID != nuts.ID {
		t.Fatalf("title filter = %+v, %v", res, err)
	}
	res, err = f.bundles.Search(f.ctx, model.BundleQuery{MaxPrice: 400, PageSize: 1000})
	if err != nil || res.Total != 1 || res.PageSize != maxPageSize || res.Page != 1 {
		t.Fatalf("price filter = %+v, %v", res, err)
	}
}

func TestReservationCreateFlipsBundle(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")
	b := f.bundle(t, s.ID, "Bag")

	res := f.reserve(t, b.ID, c.ID)
	if res.ID == 0 || res.Status != model.ReservationActive {
		t.Fatalf("reservation = %+v", res)
	}
	if want := GenerateClaimCode(res.ID, c.ID, "Bag"); res.ClaimCode != want {
		t.Errorf("claim code = %q, want %q", res.ClaimCode, want)
	}
	got, _ := f.bundles.Load(f.ctx, b.ID)
	if got.Status != model.BundleReserved || got.PurchaserID == nil || *got.PurchaserID != c.ID {
		t.Errorf("bundle = %+v", got)
	}
	if len(f.events.Events) != 1 || f.events.Events[0].Type != queue.EventReserved {
		t.Errorf("events = %+v", f.events.Events)
	}

	_, err := f.engine.Create(f.ctx, ReservationInput{BundleID: b.ID, PurchaserID: c.ID, Status: "active"})
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("second reservation: %v", err)
	}
}

func TestReservationCreateValidation(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")
	b := f.bundle(t, s.ID, "Bag")

	cases := []struct {
		in   ReservationInput
		want error
	}{
		{ReservationInput{PurchaserID: c.ID, Status: "active"}, model.ErrMissingValues},
		{ReservationInput{BundleID: b.ID, Status: "active"}, model.ErrMissingValues},
		{ReservationInput{BundleID: b.ID, PurchaserID: c.ID}, model.ErrMissingValues},
		{ReservationInput{BundleID: b.ID, PurchaserID: c.ID, Status: "completed"}, model.ErrInvalidArgument},
		{ReservationInput{BundleID: b.ID, PurchaserID: s.ID, Status: "active"}, model.ErrNoSuchCustomer},
		{ReservationInput{BundleID: 999, PurchaserID: c.ID, Status: "active"}, model.ErrNoSuchBundle},
	}
	for i, tc := range cases {
		if _, err := f.engine.Create(f.ctx, tc.in); !errors.Is(err, tc.want) {
			t.Errorf("case %d: got %v, want %v", i, err, tc.want)
		}
	}
	if st := f.bundleStatus(t, b.ID); st != model.BundleAvailable {
		t.Errorf("failed creates must leave the bundle available, got %s", st)
	}
}

func TestConcurrentReservationsBookOnce(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	b := f.bundle(t, s.ID, "Bag")
	customers := make([]*model.Account, 8)
	for i := range customers {
		customers[i] = f.customer(t, "c"+string(rune('a'+i))+"@example.com", "cust"+string(rune('a'+i)))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for _, c := range customers {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			_, err := f.engine.Create(f.ctx, ReservationInput{BundleID: b.ID, PurchaserID: id, Status: "active"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(c.ID)
	}
	wg.Wait()
	if ok != 1 || conflicts != len(customers)-1 {
		t.Fatalf("ok=%d conflicts=%d", ok, conflicts)
	}
	list, _ := f.engine.ListForUser(f.ctx, s.ID, "seller")
	if len(list) != 1 {
		t.Errorf("seller sees %d reservations", len(list))
	}
}

func TestClaim(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")
	b := f.bundle(t, s.ID, "Bag")
	res := f.reserve(t, b.ID, c.ID)

	for _, code := range []string{wrongCode(res.ClaimCode), "short", strings.ToUpper(res.ClaimCode)} {
		if code == res.ClaimCode {
			continue
		}
		if _, err := f.engine.Claim(f.ctx, code); !errors.Is(err, model.ErrInvalidClaimCode) {
			t.Errorf("claim %q: %v", code, err)
		}
	}
	if _, err := f.engine.Claim(f.ctx, ""); !errors.Is(err, model.ErrMissingValues) {
		t.Errorf("empty code: %v", err)
	}
	if got, _ := f.engine.Load(f.ctx, res.ID); got.Status != model.ReservationActive {
		t.Fatalf("wrong codes changed the reservation: %s", got.Status)
	}
	if st := f.bundleStatus(t, b.ID); st != model.BundleReserved {
		t.Fatalf("wrong codes changed the bundle: %s", st)
	}

	done, err := f.engine.Claim(f.ctx, res.ClaimCode)
	if err != nil || done.Status != model.ReservationCompleted {
		t.Fatalf("claim = %+v, %v", done, err)
	}
	if st := f.bundleStatus(t, b.ID); st != model.BundleCollected {
		t.Errorf("bundle = %s", st)
	}
	streak, err := f.streaks.Get(f.ctx, c.ID)
	if err != nil || streak.Count != 1 || streak.Status != model.StreakActive {
		t.Errorf("streak = %+v, %v", streak, err)
	}
	acc, _ := f.accounts.Load(f.ctx, c.ID)
	if acc.Customer.Streak != 1 {
		t.Errorf("customer streak = %d", acc.Customer.Streak)
	}
	if _, err := f.engine.Claim(f.ctx, res.ClaimCode); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("second claim: %v", err)
	}
	if seller, err := f.engine.SellerForClaimCode(f.ctx, res.ClaimCode); err != nil || seller != s.ID {
		t.Errorf("seller for code = %d, %v", seller, err)
	}
}

func TestCancelReleasesBundle(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")
	b := f.bundle(t, s.ID, "Bag")
	res := f.reserve(t, b.ID, c.ID)

	got, err := f.engine.Cancel(f.ctx, res.ID)
	if err != nil || got.Status != model.ReservationCancelled {
		t.Fatalf("cancel = %+v, %v", got, err)
	}
	bundle, _ := f.bundles.Load(f.ctx, b.ID)
	if bundle.Status != model.BundleAvailable || bundle.PurchaserID != nil {
		t.Errorf("bundle = %+v", bundle)
	}
	if _, err := f.engine.Cancel(f.ctx, res.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("second cancel: %v", err)
	}
	if _, err := f.engine.Claim(f.ctx, res.ClaimCode); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("claim after cancel: %v", err)
	}
	// The bundle can be reserved again.
	again := f.reserve(t, b.ID, c.ID)
	if again.ClaimCode == res.ClaimCode {
		t.Error("a new reservation needs a new claim code")
	}
}

func TestNoShowBreaksStreakAndRelists(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")
	first := f.bundle(t, s.ID, "First")
	second := f.bundle(t, s.ID, "Second")

	if _, err := f.engine.Claim(f.ctx, f.reserve(t, first.ID, c.ID).ClaimCode); err != nil {
		t.Fatal(err)
	}
	res := f.reserve(t, second.ID, c.ID)
	got, err := f.engine.MarkNoShow(f.ctx, res.ID)
	if err != nil || got.Status != model.ReservationNoShow {
		t.Fatalf("no-show = %+v, %v", got, err)
	}
	if st := f.bundleStatus(t, second.ID); st != model.BundleAvailable {
		t.Errorf("bundle = %s", st)
	}
	streak, _ := f.streaks.Get(f.ctx, c.ID)
	if streak.Count != 0 || streak.Status != model.StreakBroken {
		t.Errorf("streak = %+v", streak)
	}
	types := make([]queue.EventType, 0, len(f.events.Events))
	for _, ev := range f.events.Events {
		types = append(types, ev.Type)
	}
	want := []queue.EventType{queue.EventReserved, queue.EventCollected, queue.EventReserved, queue.EventNoShow}
	if len(types) != len(want) {
		t.Fatalf("events = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.events.Err = errors.New("broker down")
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")
	b := f.bundle(t, s.ID, "Bag")
	if _, err := f.engine.Create(f.ctx, ReservationInput{BundleID: b.ID, PurchaserID: c.ID, Status: "active"}); err != nil {
		t.Fatalf("create with broker down: %v", err)
	}
}

func TestReservationUpdateRejectsStatusChange(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")
	b := f.bundle(t, s.ID, "Bag")
	res := f.reserve(t, b.ID, c.ID)

	for _, next := range []model.ReservationStatus{
		model.ReservationCancelled, model.ReservationNoShow, model.ReservationCompleted,
	} {
		changed := *res
		changed.Status = next
		if err := f.engine.Update(f.ctx, &changed); !errors.Is(err, model.ErrInvalidTransition) {
			t.Errorf("update to %s: %v", next, err)
		}
	}
	if got, _ := f.engine.Load(f.ctx, res.ID); got.Status != model.ReservationActive {
		t.Fatalf("reservation = %s", got.Status)
	}
	if st := f.bundleStatus(t, b.ID); st != model.BundleReserved {
		t.Fatalf("bundle = %s", st)
	}

	partial := &model.Reservation{ID: res.ID, Status: model.ReservationActive, ClaimCode: "feedfacefeedface"}
	if err := f.engine.Update(f.ctx, partial); err != nil {
		t.Fatalf("update claim code: %v", err)
	}
	if partial.BundleID != b.ID || partial.PurchaserID != c.ID || partial.CreatedAt.IsZero() {
		t.Errorf("update did not reload: %+v", partial)
	}
	if got, _ := f.engine.Load(f.ctx, res.ID); got.ClaimCode != "feedfacefeedface" {
		t.Errorf("claim code = %q", got.ClaimCode)
	}
	if _, err := f.engine.Cancel(f.ctx, res.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if st := f.bundleStatus(t, b.ID); st != model.BundleAvailable {
		t.Errorf("bundle after cancel = %s", st)
	}
}

func TestDeleteActiveReservationReleasesBundle(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")
	other := f.customer(t, "d@example.com", "dee")
	b := f.bundle(t, s.ID, "Bag")
	res := f.reserve(t, b.ID, c.ID)

	if err := f.engine.Delete(f.ctx, res.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := f.engine.ExistsWithID(f.ctx, res.ID); ok {
		t.Error("reservation still exists")
	}
	got, _ := f.bundles.Load(f.ctx, b.ID)
	if got.Status != model.BundleAvailable || got.PurchaserID != nil {
		t.Fatalf("bundle = %+v", got)
	}
	f.reserve(t, b.ID, other.ID)
	if err := f.engine.Delete(f.ctx, res.ID); !errors.Is(err, model.ErrNoSuchReservation) {
		t.Errorf("second delete: %v", err)
	}
}

func TestDeleteFinishedReservationLeavesBundle(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")
	b := f.bundle(t, s.ID, "Bag")
	res := f.reserve(t, b.ID, c.ID)
	if _, err := f.engine.Claim(f.ctx, res.ClaimCode); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Delete(f.ctx, res.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if st := f.bundleStatus(t, b.ID); st != model.BundleCollected {
		t.Errorf("bundle = %s", st)
	}
}

func TestDeleteCustomerReleasesHeldBundles(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")
	other := f.customer(t, "d@example.com", "dee")
	held := f.bundle(t, s.ID, "Held")
	collected := f.bundle(t, s.ID, "Collected")
	f.reserve(t, held.ID, c.ID)
	if _, err := f.engine.Claim(f.ctx, f.reserve(t, collected.ID, c.ID).ClaimCode); err != nil {
		t.Fatal(err)
	}

	if err := f.accounts.Delete(f.ctx, c.ID); err != nil {
		t.Fatalf("delete customer: %v", err)
	}
	got, _ := f.bundles.Load(f.ctx, held.ID)
	if got.Status != model.BundleAvailable || got.PurchaserID != nil {
		t.Fatalf("held bundle = %+v", got)
	}
	if st := f.bundleStatus(t, collected.ID); st != model.BundleCollected {
		t.Errorf("collected bundle = %s", st)
	}
	f.reserve(t, held.ID, other.ID)
}

func TestListForUser(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	other := f.seller(t, "o@example.com")
	c := f.customer(t, "c@example.com", "cust")
	f.reserve(t, f.bundle(t, s.ID, "A").ID, c.ID)
	f.reserve(t, f.bundle(t, other.ID, "B").ID, c.ID)

	if list, err := f.engine.ListForUser(f.ctx, c.ID, "buyer"); err != nil || len(list) != 2 {
		t.Errorf("buyer list = %d, %v", len(list), err)
	}
	if list, err := f.engine.ListForUser(f.ctx, s.ID, "seller"); err != nil || len(list) != 1 {
		t.Errorf("seller list = %d, %v", len(list), err)
	}
	if _, err := f.engine.ListForUser(f.ctx, c.ID, "admin"); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("bad role: %v", err)
	}
}

func TestRBACAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	if err := f.rbac.CreateRole(ctx, "moderator"); err != nil {
		t.Fatal(err)
	}
	if err := f.rbac.CreateRole(ctx, "moderator"); err != nil {
		t.Fatalf("idempotent create: %v", err)
	}
	if err := f.rbac.CreatePermission(ctx, strings.Repeat("p", model.MaxTitleLength+1)); !errors.Is(err, model.ErrTitleTooLong) {
		t.Errorf("long permission: %v", err)
	}
	if err := f.rbac.CreatePermission(ctx, "bundle.hide"); err != nil {
		t.Fatal(err)
	}

	added, err := f.rbac.AssignPermissionToRole(ctx, "moderator", "bundle.hide")
	if err != nil || !added {
		t.Fatalf("first assign = %v, %v", added, err)
	}
	added, err = f.rbac.AssignPermissionToRole(ctx, "moderator", "bundle.hide")
	if err != nil || added {
		t.Fatalf("second assign = %v, %v", added, err)
	}
	if ok, _ := f.rbac.IsRolePermitted(ctx, "moderator", "bundle.hide"); !ok {
		t.Error("role should be permitted")
	}
	if removed, _ := f.rbac.RemovePermissionFromRole(ctx, "moderator", "bundle.hide"); !removed {
		t.Error("remove should report true")
	}
	if removed, _ := f.rbac.RemovePermissionFromRole(ctx, "moderator", "bundle.hide"); removed {
		t.Error("second remove should report false")
	}
	if ok, _ := f.rbac.IsRolePermitted(ctx, "moderator", "bundle.hide"); ok {
		t.Error("role should no longer be permitted")
	}
	if _, err := f.rbac.AssignPermissionToRole(ctx, "ghost", "bundle.hide"); !errors.Is(err, model.ErrNoSuchRole) {
		t.Errorf("unknown role: %v", err)
	}
	if _, err := f.rbac.AssignPermissionToRole(ctx, "moderator", "ghost"); !errors.Is(err, model.ErrNoSuchPermission) {
		t.Errorf("unknown permission: %v", err)
	}
	if _, err := f.rbac.AssignRoleToUser(ctx, 999, "moderator"); !errors.Is(err, model.ErrNoSuchAccount) {
		t.Errorf("unknown user: %v", err)
	}
}

func TestRBACTitlesTrimmedOnLookup(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	c := f.customer(t, "c@example.com", "cust")
	if err := f.rbac.CreateRole(ctx, " moderator "); err != nil {
		t.Fatal(err)
	}
	if err := f.rbac.CreatePermission(ctx, "\tbundle.hide\n"); err != nil {
		t.Fatal(err)
	}
	if ok, err := f.rbac.RoleExists(ctx, "moderator"); err != nil || !ok {
		t.Errorf("RoleExists(moderator) = %v, %v", ok, err)
	}
	if ok, err := f.rbac.RoleExists(ctx, " moderator "); err != nil || !ok {
		t.Errorf("RoleExists( moderator ) = %v, %v", ok, err)
	}
	if ok, err := f.rbac.PermissionExists(ctx, " bundle.hide"); err != nil || !ok {
		t.Errorf("PermissionExists = %v, %v", ok, err)
	}
	if added, err := f.rbac.AssignPermissionToRole(ctx, " moderator ", " bundle.hide "); err != nil || !added {
		t.Fatalf("assign = %v, %v", added, err)
	}
	if added, err := f.rbac.AssignRoleToUser(ctx, c.ID, "moderator "); err != nil || !added {
		t.Fatalf("assign role = %v, %v", added, err)
	}
	if has, err := f.rbac.HasRole(ctx, c.ID, " moderator"); err != nil || !has {
		t.Errorf("HasRole = %v, %v", has, err)
	}
	if ok, err := f.rbac.IsUserPermitted(ctx, c.ID, "bundle.hide "); err != nil || !ok {
		t.Errorf("IsUserPermitted = %v, %v", ok, err)
	}
}

func TestIsUserPermitted(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")

	if ok, err := f.rbac.IsUserPermitted(ctx, s.ID, model.PermBundleCreate); err != nil || !ok {
		t.Errorf("seller bundle.create = %v, %v", ok, err)
	}
	if ok, err := f.rbac.IsUserPermitted(ctx, c.ID, model.PermBundleCreate); err != nil || ok {
		t.Errorf("customer bundle.create = %v, %v", ok, err)
	}
	if _, err := f.rbac.IsUserPermitted(ctx, 999, model.PermBundleCreate); !errors.Is(err, model.ErrNoSuchAccount) {
		t.Errorf("unknown user: %v", err)
	}
	if _, err := f.rbac.IsUserPermitted(ctx, s.ID, "ghost.permission"); !errors.Is(err, model.ErrNoSuchPermission) {
		t.Errorf("unknown permission: %v", err)
	}

	if has, _ := f.rbac.HasRole(ctx, c.ID, "customer"); !has {
		t.Error("customer role missing")
	}
	if removed, err := f.rbac.RemoveRoleFromUser(ctx, c.ID, "customer"); err != nil || !removed {
		t.Fatalf("remove role = %v, %v", removed, err)
	}
	if ok, _ := f.rbac.IsUserPermitted(ctx, c.ID, model.PermReservationCreate); ok {
		t.Error("permission should be gone with the role")
	}
	perms, err := f.rbac.PermissionsForUser(ctx, s.ID)
	if err != nil || len(perms) != len(model.DefaultRoles["seller"]) {
		t.Errorf("seller permissions = %v, %v", perms, err)
	}
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	if err := f.rbac.SeedDefaults(f.ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if ok, _ := f.rbac.IsRolePermitted(f.ctx, "customer", model.PermReservationCancel); !ok {
		t.Error("customer must be able to cancel")
	}
}

func TestAccounts(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "Shop@Example.com")
	if s.Email != "shop@example.com" || !s.IsSeller() || s.Seller.DisplayName != "Corner Bakery" {
		t.Fatalf("seller = %+v", s)
	}
	if _, err := f.accounts.Register(f.ctx, RegisterInput{
		Email: "shop@example.com", Password: "password1", Kind: "seller", DisplayName: "x", Address: "y",
	}); !errors.Is(err, model.ErrAlreadyExists) {
		t.Errorf("duplicate email: %v", err)
	}
	if _, err := f.accounts.Register(f.ctx, RegisterInput{Email: "a@example.com", Password: "password1", Kind: "admin"}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("bad kind: %v", err)
	}
	if _, err := f.accounts.Register(f.ctx, RegisterInput{Email: "b@example.com", Password: "password1", Kind: "customer"}); !errors.Is(err, model.ErrMissingValues) {
		t.Errorf("customer without username: %v", err)
	}

	if _, err := f.accounts.Authenticate(f.ctx, "shop@example.com", "wrong"); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, err := f.accounts.Authenticate(f.ctx, "nobody@example.com", "password1"); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Errorf("unknown email: %v", err)
	}
	if got, err := f.accounts.Authenticate(f.ctx, "shop@example.com", "password1"); err != nil || got.ID != s.ID {
		t.Errorf("login = %+v, %v", got, err)
	}

	b := f.bundle(t, s.ID, "Bag")
	if err := f.accounts.Delete(f.ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.bundles.Load(f.ctx, b.ID); !errors.Is(err, model.ErrNoSuchBundle) {
		t.Errorf("bundles must cascade: %v", err)
	}
	if err := f.accounts.Delete(f.ctx, s.ID); !errors.Is(err, model.ErrNoSuchAccount) {
		t.Errorf("second delete: %v", err)
	}
}

func TestStreakService(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	c := f.customer(t, "c@example.com", "cust")

	if _, err := f.streaks.Get(f.ctx, c.ID); !errors.Is(err, model.ErrNoSuchStreak) {
		t.Errorf("no streak yet: %v", err)
	}
	st, err := f.streaks.Create(f.ctx, c.ID)
	if err != nil || st.Count != 0 || st.Status != model.StreakActive {
		t.Fatalf("create = %+v, %v", st, err)
	}
	if _, err := f.streaks.Create(f.ctx, c.ID); !errors.Is(err, model.ErrAlreadyExists) {
		t.Errorf("second streak: %v", err)
	}
	if _, err := f.streaks.Create(f.ctx, s.ID); !errors.Is(err, model.ErrNoSuchCustomer) {
		t.Errorf("seller streak: %v", err)
	}
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	c := f.customer(t, "c@example.com", "cust")

	pair, err := f.sessions.Issue(f.ctx, c)
	if err != nil || pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("issue = %+v, %v", pair, err)
	}
	next, err := f.sessions.Refresh(f.ctx, pair.RefreshToken)
	if err != nil || next.RefreshToken == pair.RefreshToken {
		t.Fatalf("refresh = %+v, %v", next, err)
	}
	if _, err := f.sessions.Refresh(f.ctx, pair.RefreshToken); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("reused refresh token: %v", err)
	}
	if err := f.sessions.Revoke(f.ctx, next.RefreshToken); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sessions.Refresh(f.ctx, next.RefreshToken); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("revoked refresh token: %v", err)
	}
	third, _ := f.sessions.Issue(f.ctx, c)
	if err := f.sessions.RevokeAll(f.ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sessions.Refresh(f.ctx, third.RefreshToken); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("after revoke all: %v", err)
	}
}

// TestPickupScenario walks a seller, a bundle and a customer through
// reservation, a failed claim and a successful claim.
func TestPickupScenario(t *testing.T) {
	f := newFixture(t)
	s := f.seller(t, "s@example.com")
	b, err := f.bundles.Create(f.ctx, BundleInput{
		Status: "available", Title: "Veg box", Details: "mixed veg",
		RetailPrice: "10.00", DiscountedPrice: "5.00", SellerID: s.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.RetailPrice != 1000 || b.DiscountedPrice != 500 {
		t.Fatalf("prices = %d/%d", b.RetailPrice, b.DiscountedPrice)
	}
	c := f.customer(t, "c@example.com", "cust")
	res := f.reserve(t, b.ID, c.ID)
	if st := f.bundleStatus(t, b.ID); st != model.BundleReserved || res.Status != model.ReservationActive {
		t.Fatalf("after reserve: bundle %s, reservation %s", st, res.Status)
	}

	if _, err := f.engine.Claim(f.ctx, wrongCode(res.ClaimCode)); !errors.Is(err, model.ErrInvalidClaimCode) {
		t.Fatalf("wrong code: %v", err)
	}
	if st := f.bundleStatus(t, b.ID); st != model.BundleReserved {
		t.Fatalf("wrong code changed bundle to %s", st)
	}

	stored, err := f.engine.Load(f.ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	done, err := f.engine.Claim(f.ctx, stored.ClaimCode)
	if err != nil || done.Status != model.ReservationCompleted {
		t.Fatalf("claim = %+v, %v", done, err)
	}
	if st := f.bundleStatus(t, b.ID); st != model.BundleCollected {
		t.Fatalf("bundle = %s", st)
	}
}

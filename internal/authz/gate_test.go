package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/surplus-market/internal/model"
)

type stubPerms struct {
	granted map[uint64][]string
	err     error
}

func (s stubPerms) IsUserPermitted(_ context.Context, userID uint64, permission string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	perms, ok := s.granted[userID]
	if !ok {
		return false, model.ErrNoSuchAccount
	}
	for _, p := range perms {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

func newGate() *Gate {
	return NewGate(stubPerms{granted: map[uint64][]string{
		1: {model.PermBundleUpdate},
		2: {},
	}}, zerolog.Nop())
}

func ownedBy(id uint64, called *bool) OwnerResolver {
	return func(context.Context) (uint64, error) {
		*called = true
		return id, nil
	}
}

func TestAuthorizeOrder(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	cases := []struct {
		name       string
		caller     Caller
		owner      uint64
		want       error
		wantLookup bool
	}{
		{"anonymous", Caller{}, 1, model.ErrUnauthenticated, false},
		{"deleted account", Caller{UserID: 9, Kind: model.KindSeller}, 9, model.ErrUnauthenticated, false},
		{"missing permission", Caller{UserID: 2, Kind: model.KindSeller}, 2, model.ErrForbidden, false},
		{"not the owner", Caller{UserID: 1, Kind: model.KindSeller}, 7, model.ErrOwnershipViolation, true},
		{"owner", Caller{UserID: 1, Kind: model.KindSeller}, 1, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var called bool
			err := g.Authorize(ctx, tc.caller, model.PermBundleUpdate, ownedBy(tc.owner, &called))
			if !errors.Is(err, tc.want) || (tc.want == nil && err != nil) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if called != tc.wantLookup {
				t.Errorf("owner lookup = %v, want %v", called, tc.wantLookup)
			}
		})
	}
}

func TestAuthorizeWithoutOwner(t *testing.T) {
	g := newGate()
	if err := g.Authorize(context.Background(), Caller{UserID: 1}, model.PermBundleUpdate, nil); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestAuthorizePassesResolverErrors(t *testing.T) {
	g := newGate()
	owner := func(context.Context) (uint64, error) { return 0, model.ErrNoSuchBundle }
	if err := g.Authorize(context.Background(), Caller{UserID: 1}, model.PermBundleUpdate, owner); !errors.Is(err, model.ErrNoSuchBundle) {
		t.Fatalf("err = %v", err)
	}
}

func TestAuthorizeStoreFailure(t *testing.T) {
	boom := errors.New("db down")
	g := NewGate(stubPerms{err: boom}, zerolog.Nop())
	if err := g.Authorize(context.Background(), Caller{UserID: 1}, model.PermBundleUpdate, nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestRequirePermission(t *testing.T) {
	g := newGate()
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	mw := RequirePermission(g, model.PermBundleUpdate)

	run := func(caller *Caller) error {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
		if caller != nil {
			SetCaller(c, *caller)
		}
		return mw(ok)(c)
	}

	if err := run(nil); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("anonymous: %v", err)
	}
	if err := run(&Caller{UserID: 2}); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("no permission: %v", err)
	}
	if err := run(&Caller{UserID: 1}); err != nil {
		t.Errorf("permitted: %v", err)
	}
}

func TestCallerFromDefaultsToAnonymous(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if CallerFrom(c).Authenticated() {
		t.Fatal("expected anonymous caller")
	}
}

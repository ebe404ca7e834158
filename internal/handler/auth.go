package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/surplus-market/internal/authz"
	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Accounts *service.AccountService
	Sessions *service.SessionService
	RBAC     *service.RBACManager
}

func NewAuthHandler(a *service.AccountService, s *service.SessionService, r *service.RBACManager) *AuthHandler {
	return &AuthHandler{Accounts: a, Sessions: s, RBAC: r}
}

// ----- DTOs -----

type registerReq struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	Kind        string `json:"kind" validate:"required,oneof=seller customer"`
	DisplayName string `json:"display_name"`
	Address     string `json:"address"`
	Username    string `json:"username"`
}
type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type accountPart struct {
	ID          uint64 `json:"id"`
	Email       string `json:"email"`
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name,omitempty"`
	Address     string `json:"address,omitempty"`
	Username    string `json:"username,omitempty"`
	Streak      uint32 `json:"streak"`
}
type authResp struct {
	Account accountPart `json:"account"`
	Access  tokenPart   `json:"access"`
	Refresh tokenPart   `json:"refresh"`
}

func toAccountPart(a *model.Account) accountPart {
	out := accountPart{ID: a.ID, Email: a.Email, Kind: string(a.Kind)}
	switch a.Kind {
	case model.KindSeller:
		out.DisplayName, out.Address = a.Seller.DisplayName, a.Seller.Address
	case model.KindCustomer:
		out.Username, out.Streak = a.Customer.Username, a.Customer.Streak
	}
	return out
}

func toAuthResp(a *model.Account, p *service.TokenPair) authResp {
	return authResp{
		Account: toAccountPart(a),
		Access:  tokenPart{Token: p.AccessToken, Expires: p.AccessExpires},
		Refresh: tokenPart{Token: p.RefreshToken, Expires: p.RefreshExpires},
	}
}

// Register creates the account and returns a token pair immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	acc, err := h.Accounts.Register(ctx, service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		Kind:        req.Kind,
		DisplayName: req.DisplayName,
		Address:     req.Address,
		Username:    req.Username,
	})
	if err != nil {
		return err
	}
	pair, err := h.Sessions.Issue(ctx, acc)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toAuthResp(acc, pair))
}

// Login verifies the credentials and returns a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	acc, err := h.Accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	pair, err := h.Sessions.Issue(ctx, acc)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAuthResp(acc, pair))
}

// Refresh rotates the refresh token and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	pair, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access":  tokenPart{Token: pair.AccessToken, Expires: pair.AccessExpires},
		"refresh": tokenPart{Token: pair.RefreshToken, Expires: pair.RefreshExpires},
	})
}

// Logout revokes the supplied refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Sessions.Revoke(ctx, req.RefreshToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's account and effective permissions.
func (h *AuthHandler) Me(c echo.Context) error {
	caller := authz.CallerFrom(c)
	if !caller.Authenticated() {
		return model.ErrUnauthenticated
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	acc, err := h.Accounts.Load(ctx, caller.UserID)
	if err != nil {
		return err
	}
	perms, err := h.RBAC.PermissionsForUser(ctx, caller.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"account":     toAccountPart(acc),
		"permissions": perms,
	})
}

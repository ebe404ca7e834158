package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/repository"
)

// RBACManager is the permission store: roles, permissions, role→permission
// (PA) and user→role (UA) associations.  It answers "may user U do P" and
// never performs business validation.
type RBACManager struct {
	store  repository.Store
	logger zerolog.Logger
}

func NewRBACManager(store repository.Store, logger zerolog.Logger) *RBACManager {
	return &RBACManager{store: store, logger: logger}
}

// CreateRole creates a role; an existing title is a no-op.
func (m *RBACManager) CreateRole(ctx context.Context, title string) error {
	t, err := model.ValidateRBACTitle(title)
	if err != nil {
		return err
	}
	return m.store.RBAC().CreateRole(ctx, t)
}

// CreatePermission creates a permission; an existing title is a no-op.
func (m *RBACManager) CreatePermission(ctx context.Context, title string) error {
	t, err := model.ValidateRBACTitle(title)
	if err != nil {
		return err
	}
	return m.store.RBAC().CreatePermission(ctx, t)
}

func (m *RBACManager) RoleExists(ctx context.Context, title string) (bool, error) {
	_, ok, err := m.store.RBAC().RoleID(ctx, strings.TrimSpace(title))
	return ok, err
}

func (m *RBACManager) PermissionExists(ctx context.Context, title string) (bool, error) {
	_, ok, err := m.store.RBAC().PermissionID(ctx, strings.TrimSpace(title))
	return ok, err
}

// AssignPermissionToRole reports true when a new association was created
// and false when it already existed.
func (m *RBACManager) AssignPermissionToRole(ctx context.Context, role, permission string) (bool, error) {
	rid, pid, err := rolePermission(ctx, m.store, role, permission)
	if err != nil {
		return false, err
	}
	return m.store.RBAC().AddPermissionToRole(ctx, rid, pid)
}

// RemovePermissionFromRole reports false when there was nothing to remove.
func (m *RBACManager) RemovePermissionFromRole(ctx context.Context, role, permission string) (bool, error) {
	rid, pid, err := rolePermission(ctx, m.store, role, permission)
	if err != nil {
		return false, err
	}
	return m.store.RBAC().RemovePermissionFromRole(ctx, rid, pid)
}

// AssignRoleToUser reports true when a new association was created.
func (m *RBACManager) AssignRoleToUser(ctx context.Context, userID uint64, role string) (bool, error) {
	return assignRole(ctx, m.store, userID, role)
}

// RemoveRoleFromUser reports false when the user did not hold the role.
func (m *RBACManager) RemoveRoleFromUser(ctx context.Context, userID uint64, role string) (bool, error) {
	rid, err := userRole(ctx, m.store, userID, role)
	if err != nil {
		return false, err
	}
	return m.store.RBAC().RemoveRoleFromUser(ctx, userID, rid)
}

func (m *RBACManager) IsRolePermitted(ctx context.Context, role, permission string) (bool, error) {
	rid, pid, err := rolePermission(ctx, m.store, role, permission)
	if err != nil {
		return false, err
	}
	return m.store.RBAC().RoleHasPermission(ctx, rid, pid)
}

func (m *RBACManager) HasRole(ctx context.Context, userID uint64, role string) (bool, error) {
	rid, err := userRole(ctx, m.store, userID, role)
	if err != nil {
		return false, err
	}
	return m.store.RBAC().UserHasRole(ctx, userID, rid)
}

// IsUserPermitted reports whether any role assigned to the user carries
// permission.  An unknown user or permission is an error, never false.
func (m *RBACManager) IsUserPermitted(ctx context.Context, userID uint64, permission string) (bool, error) {
	if err := requireAccount(ctx, m.store, userID); err != nil {
		return false, err
	}
	pid, ok, err := m.store.RBAC().PermissionID(ctx, strings.TrimSpace(permission))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, model.ErrNoSuchPermission
	}
	return m.store.RBAC().UserHasPermission(ctx, userID, pid)
}

// PermissionsForUser lists the user's effective permissions.
func (m *RBACManager) PermissionsForUser(ctx context.Context, userID uint64) ([]string, error) {
	if err := requireAccount(ctx, m.store, userID); err != nil {
		return nil, err
	}
	return m.store.RBAC().PermissionsForUser(ctx, userID)
}

// SeedDefaults creates the default roles and their permissions.  It is
// idempotent and runs at start-up.
func (m *RBACManager) SeedDefaults(ctx context.Context) error {
	return m.store.InTx(ctx, func(r repository.Repositories) error {
		for role, perms := range model.DefaultRoles {
			if err := r.RBAC().CreateRole(ctx, role); err != nil {
				return err
			}
			for _, p := range perms {
				if err := r.RBAC().CreatePermission(ctx, p); err != nil {
					return err
				}
				rid, pid, err := rolePermission(ctx, r, role, p)
				if err != nil {
					return err
				}
				added, err := r.RBAC().AddPermissionToRole(ctx, rid, pid)
				if err != nil {
					return err
				}
				if added {
					m.logger.Debug().Str("role", role).Str("permission", p).Msg("permission granted")
				}
			}
		}
		return nil
	})
}

// Titles are trimmed on lookup the same way ValidateRBACTitle trims them on
// create.
func rolePermission(ctx context.Context, r repository.Repositories, role, permission string) (uint64, uint64, error) {
	rid, ok, err := r.RBAC().RoleID(ctx, strings.TrimSpace(role))
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, model.ErrNoSuchRole
	}
	pid, ok, err := r.RBAC().PermissionID(ctx, strings.TrimSpace(permission))
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, model.ErrNoSuchPermission
	}
	return rid, pid, nil
}

func userRole(ctx context.Context, r repository.Repositories, userID uint64, role string) (uint64, error) {
	if err := requireAccount(ctx, r, userID); err != nil {
		return 0, err
	}
	rid, ok, err := r.RBAC().RoleID(ctx, strings.TrimSpace(role))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, model.ErrNoSuchRole
	}
	return rid, nil
}

func assignRole(ctx context.Context, r repository.Repositories, userID uint64, role string) (bool, error) {
	rid, err := userRole(ctx, r, userID, role)
	if err != nil {
		return false, err
	}
	return r.RBAC().AddRoleToUser(ctx, userID, rid)
}

func requireAccount(ctx context.Context, r repository.Repositories, userID uint64) error {
	ok, err := r.Accounts().Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrNoSuchAccount
	}
	return nil
}

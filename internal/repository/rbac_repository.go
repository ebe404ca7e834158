package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/surplus-market/internal/model"
)

// RBACRepo persists rbac_roles, rbac_permissions and the two association
// tables rbac_pa (permission assignment) and rbac_ua (user assignment).
// Inserts use INSERT IGNORE so that re-adding an existing association is
// a no-op reported through the returned bool.
type RBACRepo struct{ q dbtx }

// CreateRole inserts a role; an existing title is left untouched.
func (r *RBACRepo) CreateRole(ctx context.Context, title string) error {
	_, err := r.q.ExecContext(ctx, "INSERT IGNORE INTO rbac_roles (title) VALUES (?)", title)
	return model.Persistence("insert role", err)
}

// CreatePermission inserts a permission; an existing title is left untouched.
func (r *RBACRepo) CreatePermission(ctx context.Context, title string) error {
	_, err := r.q.ExecContext(ctx, "INSERT IGNORE INTO rbac_permissions (title) VALUES (?)", title)
	return model.Persistence("insert permission", err)
}

func (r *RBACRepo) RoleID(ctx context.Context, title string) (uint64, bool, error) {
	return r.idOf(ctx, "SELECT id FROM rbac_roles WHERE title = ?", title, "select role")
}

func (r *RBACRepo) PermissionID(ctx context.Context, title string) (uint64, bool, error) {
	return r.idOf(ctx, "SELECT id FROM rbac_permissions WHERE title = ?", title, "select permission")
}

func (r *RBACRepo) idOf(ctx context.Context, query, title, op string) (uint64, bool, error) {
	var id uint64
	err := r.q.QueryRowContext(ctx, query, title).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, model.Persistence(op, err)
	}
	return id, true, nil
}

func (r *RBACRepo) AddPermissionToRole(ctx context.Context, roleID, permissionID uint64) (bool, error) {
	return r.exec(ctx, "add permission to role",
		"INSERT IGNORE INTO rbac_pa (role_id, permission_id) VALUES (?, ?)", roleID, permissionID)
}

func (r *RBACRepo) RemovePermissionFromRole(ctx context.Context, roleID, permissionID uint64) (bool, error) {
	return r.exec(ctx, "remove permission from role",
		"DELETE FROM rbac_pa WHERE role_id = ? AND permission_id = ?", roleID, permissionID)
}

func (r *RBACRepo) AddRoleToUser(ctx context.Context, userID, roleID uint64) (bool, error) {
	res, err := r.q.ExecContext(ctx, "INSERT IGNORE INTO rbac_ua (user_id, role_id) VALUES (?, ?)", userID, roleID)
	if err != nil {
		return false, model.Persistence("add role to user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, model.Persistence("add role to user", err)
	}
	if n == 0 {
		// INSERT IGNORE also swallows the FK failure for an unknown user.
		var one int
		err := r.q.QueryRowContext(ctx, "SELECT 1 FROM account WHERE id = ?", userID).Scan(&one)
		if err != nil {
			return false, notFound("select account", err, model.ErrNoSuchAccount)
		}
	}
	return n > 0, nil
}

func (r *RBACRepo) RemoveRoleFromUser(ctx context.Context, userID, roleID uint64) (bool, error) {
	return r.exec(ctx, "remove role from user",
		"DELETE FROM rbac_ua WHERE user_id = ? AND role_id = ?", userID, roleID)
}

func (r *RBACRepo) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, model.Persistence(op, err)
	}
	return affected(op, res)
}

func (r *RBACRepo) RoleHasPermission(ctx context.Context, roleID, permissionID uint64) (bool, error) {
	return r.exists(ctx, "role has permission",
		"SELECT 1 FROM rbac_pa WHERE role_id = ? AND permission_id = ? LIMIT 1", roleID, permissionID)
}

func (r *RBACRepo) UserHasRole(ctx context.Context, userID, roleID uint64) (bool, error) {
	return r.exists(ctx, "user has role",
		"SELECT 1 FROM rbac_ua WHERE user_id = ? AND role_id = ? LIMIT 1", userID, roleID)
}

// UserHasPermission checks the union of the user's roles' permissions.
func (r *RBACRepo) UserHasPermission(ctx context.Context, userID, permissionID uint64) (bool, error) {
	return r.exists(ctx, "user has permission",
		`SELECT 1 FROM rbac_ua ua
		 JOIN rbac_pa pa ON pa.role_id = ua.role_id
		 WHERE ua.user_id = ? AND pa.permission_id = ? LIMIT 1`, userID, permissionID)
}

func (r *RBACRepo) exists(ctx context.Context, op, query string, args ...any) (bool, error) {
	var one int
	err := r.q.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, model.Persistence(op, err)
	}
	return true, nil
}

// PermissionsForUser lists the distinct permission titles granted to the
// user through any role, sorted by title.
func (r *RBACRepo) PermissionsForUser(ctx context.Context, userID uint64) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT DISTINCT p.title FROM rbac_ua ua
		 JOIN rbac_pa pa ON pa.role_id = ua.role_id
		 JOIN rbac_permissions p ON p.id = pa.permission_id
		 WHERE ua.user_id = ? ORDER BY p.title`, userID)
	if err != nil {
		return nil, model.Persistence("list permissions", err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, model.Persistence("scan permission", err)
		}
		out = append(out, title)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("list permissions", err)
	}
	return out, nil
}

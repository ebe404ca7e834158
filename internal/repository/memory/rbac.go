package memory

import (
	"context"
	"sort"

	"github.com/iliyamo/surplus-market/internal/model"
)

type rbacRepo struct{ s *Store }

func (r rbacRepo) CreateRole(_ context.Context, title string) error {
	return r.s.view(func(st *state) error {
		if _, ok := idByTitle(st.roles, title); !ok {
			st.roles[st.next("role")] = title
		}
		return nil
	})
}

func (r rbacRepo) CreatePermission(_ context.Context, title string) error {
	return r.s.view(func(st *state) error {
		if _, ok := idByTitle(st.permissions, title); !ok {
			st.permissions[st.next("permission")] = title
		}
		return nil
	})
}

func idByTitle(table map[uint64]string, title string) (uint64, bool) {
	for id, t := range table {
		if t == title {
			return id, true
		}
	}
	return 0, false
}

func (r rbacRepo) RoleID(_ context.Context, title string) (id uint64, found bool, err error) {
	err = r.s.view(func(st *state) error {
		id, found = idByTitle(st.roles, title)
		return nil
	})
	return id, found, err
}

func (r rbacRepo) PermissionID(_ context.Context, title string) (id uint64, found bool, err error) {
	err = r.s.view(func(st *state) error {
		id, found = idByTitle(st.permissions, title)
		return nil
	})
	return id, found, err
}

func (r rbacRepo) AddPermissionToRole(_ context.Context, roleID, permissionID uint64) (bool, error) {
	return r.add(func(st *state) (map[pair]struct{}, pair, error) {
		_, roleOK := st.roles[roleID]
		_, permOK := st.permissions[permissionID]
		if !roleOK || !permOK {
			return nil, pair{}, model.Persistence("add permission to role", errForeignKey)
		}
		return st.pa, pair{roleID, permissionID}, nil
	})
}

func (r rbacRepo) AddRoleToUser(_ context.Context, userID, roleID uint64) (bool, error) {
	return r.add(func(st *state) (map[pair]struct{}, pair, error) {
		if _, ok := st.accounts[userID]; !ok {
			return nil, pair{}, model.ErrNoSuchAccount
		}
		if _, ok := st.roles[roleID]; !ok {
			return nil, pair{}, model.Persistence("add role to user", errForeignKey)
		}
		return st.ua, pair{userID, roleID}, nil
	})
}

func (r rbacRepo) add(target func(*state) (map[pair]struct{}, pair, error)) (bool, error) {
	var added bool
	err := r.s.view(func(st *state) error {
		table, key, err := target(st)
		if err != nil {
			return err
		}
		if _, ok := table[key]; !ok {
			table[key] = struct{}{}
			added = true
		}
		return nil
	})
	return added, err
}

func (r rbacRepo) RemovePermissionFromRole(_ context.Context, roleID, permissionID uint64) (bool, error) {
	return r.remove(func(st *state) map[pair]struct{} { return st.pa }, pair{roleID, permissionID})
}

func (r rbacRepo) RemoveRoleFromUser(_ context.Context, userID, roleID uint64) (bool, error) {
	return r.remove(func(st *state) map[pair]struct{} { return st.ua }, pair{userID, roleID})
}

func (r rbacRepo) remove(table func(*state) map[pair]struct{}, key pair) (bool, error) {
	var removed bool
	err := r.s.view(func(st *state) error {
		t := table(st)
		if _, removed = t[key]; removed {
			delete(t, key)
		}
		return nil
	})
	return removed, err
}

func (r rbacRepo) RoleHasPermission(_ context.Context, roleID, permissionID uint64) (ok bool, err error) {
	err = r.s.view(func(st *state) error {
		_, ok = st.pa[pair{roleID, permissionID}]
		return nil
	})
	return ok, err
}

func (r rbacRepo) UserHasRole(_ context.Context, userID, roleID uint64) (ok bool, err error) {
	err = r.s.view(func(st *state) error {
		_, ok = st.ua[pair{userID, roleID}]
		return nil
	})
	return ok, err
}

func (r rbacRepo) UserHasPermission(_ context.Context, userID, permissionID uint64) (ok bool, err error) {
	err = r.s.view(func(st *state) error {
		for ua := range st.ua {
			if ua.a != userID {
				continue
			}
			if _, ok = st.pa[pair{ua.b, permissionID}]; ok {
				return nil
			}
		}
		return nil
	})
	return ok, err
}

func (r rbacRepo) PermissionsForUser(_ context.Context, userID uint64) ([]string, error) {
	seen := map[string]struct{}{}
	err := r.s.view(func(st *state) error {
		for ua := range st.ua {
			if ua.a != userID {
				continue
			}
			for pa := range st.pa {
				if pa.a == ua.b {
					seen[st.permissions[pa.b]] = struct{}{}
				}
			}
		}
		return nil
	})
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, err
}

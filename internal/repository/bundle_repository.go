package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/surplus-market/internal/model"
)

// BundleRepo persists rows of the bundle, allergen and bundle_allergen
// tables.  Prices travel to and from MySQL as DECIMAL(10,2) strings and
// are converted with model.ParsePence / Pence.String, never float64.
type BundleRepo struct{ q dbtx }

const selectBundle = `SELECT id, status, title, details, rrp, discounted_price, seller_id, purchaser_id, created_at, updated_at FROM bundle`

// Create inserts the bundle and its allergen tags and assigns b.ID.  A
// missing seller yields model.ErrNoSuchSeller; violating the
// discounted_price < rrp CHECK yields a persistence failure.
func (r *BundleRepo) Create(ctx context.Context, b *model.Bundle) error {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO bundle (status, title, details, rrp, discounted_price, seller_id, purchaser_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(b.Status), b.Title, b.Details, b.RetailPrice.String(), b.DiscountedPrice.String(),
		b.SellerID, nullableID(b.PurchaserID))
	if err != nil {
		if mysqlErrNumber(err) == errNoReferencedRow {
			return model.ErrNoSuchSeller
		}
		return model.Persistence(bundleWriteOp("insert bundle", err), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Persistence("insert bundle", err)
	}
	b.ID = uint64(id)
	b.Allergens = model.NormalizeAllergens(b.Allergens)
	for _, tag := range b.Allergens {
		// LAST_INSERT_ID(id) makes the existing row's id available on duplicates.
		res, err := r.q.ExecContext(ctx,
			"INSERT INTO allergen (name) VALUES (?) ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)", tag)
		if err != nil {
			return model.Persistence("upsert allergen", err)
		}
		allergenID, err := res.LastInsertId()
		if err != nil {
			return model.Persistence("upsert allergen", err)
		}
		if _, err := r.q.ExecContext(ctx,
			"INSERT IGNORE INTO bundle_allergen (bundle_id, allergen_id) VALUES (?, ?)", b.ID, allergenID); err != nil {
			return model.Persistence("insert bundle allergen", err)
		}
	}
	got, err := r.GetByID(ctx, b.ID)
	if err != nil {
		return err
	}
	*b = *got
	return nil
}

// GetByID returns the bundle with its allergens or model.ErrNoSuchBundle.
func (r *BundleRepo) GetByID(ctx context.Context, id uint64) (*model.Bundle, error) {
	return r.get(ctx, selectBundle+" WHERE id = ?", id)
}

// LockByID reads the bundle with SELECT ... FOR UPDATE so that concurrent
// reservation attempts on the same bundle serialise on the row lock.
func (r *BundleRepo) LockByID(ctx context.Context, id uint64) (*model.Bundle, error) {
	return r.get(ctx, selectBundle+" WHERE id = ? FOR UPDATE", id)
}

func (r *BundleRepo) get(ctx context.Context, query string, id uint64) (*model.Bundle, error) {
	b, err := scanBundle(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("select bundle", err, model.ErrNoSuchBundle)
	}
	tags, err := r.allergens(ctx, []uint64{b.ID})
	if err != nil {
		return nil, err
	}
	b.Allergens = tags[b.ID]
	if b.Allergens == nil {
		b.Allergens = []string{}
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBundle(row rowScanner) (*model.Bundle, error) {
	var (
		b               model.Bundle
		status          string
		rrp, discounted string
		purchaser       sql.NullInt64
	)
	if err := row.Scan(&b.ID, &status, &b.Title, &b.Details, &rrp, &discounted,
		&b.SellerID, &purchaser, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if b.Status, err = model.ParseBundleStatus(status); err != nil {
		return nil, err
	}
	if b.RetailPrice, err = model.ParsePence(rrp); err != nil {
		return nil, err
	}
	if b.DiscountedPrice, err = model.ParsePence(discounted); err != nil {
		return nil, err
	}
	if purchaser.Valid {
		pid := uint64(purchaser.Int64)
		b.PurchaserID = &pid
	}
	return &b, nil
}

// allergens loads the tags of several bundles in one query.
func (r *BundleRepo) allergens(ctx context.Context, ids []uint64) (map[uint64][]string, error) {
	out := make(map[uint64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(ids))
	placeholders := make([]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
		placeholders = append(placeholders, "?")
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT ba.bundle_id, a.name
		 FROM bundle_allergen ba
		 JOIN allergen a ON a.id = ba.allergen_id
		 WHERE ba.bundle_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY ba.bundle_id, a.name`, args...)
	if err != nil {
		return nil, model.Persistence("select allergens", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bundleID uint64
		var name string
		if err := rows.Scan(&bundleID, &name); err != nil {
			return nil, model.Persistence("scan allergen", err)
		}
		out[bundleID] = append(out[bundleID], name)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("select allergens", err)
	}
	return out, nil
}

// Exists reports whether a bundle with id exists.
func (r *BundleRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var one int
	err := r.q.QueryRowContext(ctx, "SELECT 1 FROM bundle WHERE id = ? LIMIT 1", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, model.Persistence("bundle exists", err)
	}
	return true, nil
}

// Update applies patch to the bundle.  It returns model.ErrNoSuchBundle
// when the row does not exist.
func (r *BundleRepo) Update(ctx context.Context, id uint64, p BundlePatch) error {
	if p.Empty() {
		return model.ErrMissingValues
	}
	sets := []string{}
	args := []any{}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Details != nil {
		sets = append(sets, "details = ?")
		args = append(args, *p.Details)
	}
	if p.RetailPrice != nil {
		sets = append(sets, "rrp = ?")
		args = append(args, p.RetailPrice.String())
	}
	switch {
	case p.ClearPurchaser:
		sets = append(sets, "purchaser_id = NULL")
	case p.PurchaserID != nil:
		sets = append(sets, "purchaser_id = ?")
		args = append(args, *p.PurchaserID)
	}
	args = append(args, id)
	res, err := r.q.ExecContext(ctx, "UPDATE bundle SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		if mysqlErrNumber(err) == errNoReferencedRow {
			return model.ErrNoSuchCustomer
		}
		return model.Persistence(bundleWriteOp("update bundle", err), err)
	}
	changed, err := affected("update bundle", res)
	if err != nil {
		return err
	}
	if !changed {
		exists, err := r.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return model.ErrNoSuchBundle
		}
	}
	return nil
}

// Delete removes the bundle; allergen links and reservations cascade.
func (r *BundleRepo) Delete(ctx context.Context, id uint64) (bool, error) {
	// bundle_id feeds the generated active_bundle_id column, so its foreign
	// key cannot cascade; reservations go first.
	if _, err := r.q.ExecContext(ctx, "DELETE FROM reservation WHERE bundle_id = ?", id); err != nil {
		return false, model.Persistence("delete bundle reservations", err)
	}
	res, err := r.q.ExecContext(ctx, "DELETE FROM bundle WHERE id = ?", id)
	if err != nil {
		return false, model.Persistence("delete bundle", err)
	}
	return affected("delete bundle", res)
}

// Search returns one page of bundles matching q and the total match count.
// Bundles are ordered newest first.
func (r *BundleRepo) Search(ctx context.Context, q model.BundleQuery) ([]model.Bundle, int64, error) {
	where := []string{}
	args := []any{}

	statuses := q.Statuses
	if len(statuses) == 0 {
		statuses = []model.BundleStatus{model.BundleAvailable}
	}
	ph := make([]string, 0, len(statuses))
	for _, s := range statuses {
		ph = append(ph, "?")
		args = append(args, string(s))
	}
	where = append(where, "b.status IN ("+strings.Join(ph, ",")+")")

	if t := strings.TrimSpace(q.Title); t != "" {
		where = append(where, "LOWER(b.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(t)+"%")
	}
	if q.SellerID != 0 {
		where = append(where, "b.seller_id = ?")
		args = append(args, q.SellerID)
	}
	if q.MaxPrice > 0 {
		where = append(where, "b.discounted_price <= ?")
		args = append(args, q.MaxPrice.String())
	}
	if ex := model.NormalizeAllergens(q.ExcludeAllergens); len(ex) > 0 {
		ph := make([]string, 0, len(ex))
		for _, tag := range ex {
			ph = append(ph, "?")
			args = append(args, tag)
		}
		where = append(where, `NOT EXISTS (SELECT 1 FROM bundle_allergen ba
			JOIN allergen a ON a.id = ba.allergen_id
			WHERE ba.bundle_id = b.id AND a.name IN (`+strings.Join(ph, ",")+`))`)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM bundle b WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, model.Persistence("count bundles", err)
	}

	offset := (q.Page - 1) * q.PageSize
	rows, err := r.q.QueryContext(ctx,
		`SELECT b.id, b.status, b.title, b.details, b.rrp, b.discounted_price, b.seller_id, b.purchaser_id, b.created_at, b.updated_at
		 FROM bundle b WHERE `+cond+` ORDER BY b.created_at DESC, b.id DESC LIMIT ? OFFSET ?`,
		append(args, q.PageSize, offset)...)
	if err != nil {
		return nil, 0, model.Persistence("search bundles", err)
	}
	defer rows.Close()
	items := make([]model.Bundle, 0)
	ids := make([]uint64, 0)
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, 0, model.Persistence("scan bundle", err)
		}
		items = append(items, *b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, model.Persistence("search bundles", err)
	}
	tags, err := r.allergens(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Allergens = tags[items[i].ID]
		if items[i].Allergens == nil {
			items[i].Allergens = []string{}
		}
	}
	return items, total, nil
}

// bundleWriteOp names the failing operation, calling out the price CHECK.
func bundleWriteOp(op string, err error) string {
	if mysqlErrNumber(err) == errCheckConstraint {
		return op + ": discounted price must be below retail price"
	}
	return op
}

func nullableID(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}

// Package postgres implements the store contract on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bomdb/bomdb/internal/model"
	"github.com/bomdb/bomdb/internal/store"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so store methods work
// inside and outside explicit transactions.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Store is the PostgreSQL-backed implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
	db   DBTX
}

var _ store.Store = (*Store)(nil)

// New wraps a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Connect opens a pool against databaseURL and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WithTx returns a Store bound to tx so a whole import batch shares one
// transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{pool: s.pool, db: tx}
}

// Begin starts a transaction on the underlying pool.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

const uniqueViolation = "23505"

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrDuplicatePart
	}
	return err
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (model.Customer, error) {
	var c model.Customer
	var email pgtype.Text
	err := s.db.QueryRow(ctx,
		`SELECT id, name, contact_email, active, created_at
		   FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &email, &c.Active, &c.CreatedAt)
	if err != nil {
		return model.Customer{}, fmt.Errorf("get customer %d: %w", id, mapErr(err))
	}
	c.ContactEmail = email.String
	return c, nil
}

func (s *Store) GetProject(ctx context.Context, id int64) (model.Project, error) {
	var p model.Project
	err := s.db.QueryRow(ctx,
		`SELECT id, customer_id, code, title, created_at
		   FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.CustomerID, &p.Code, &p.Title, &p.CreatedAt)
	if err != nil {
		return model.Project{}, fmt.Errorf("get project %d: %w", id, mapErr(err))
	}
	return p, nil
}

func (s *Store) GetAssembly(ctx context.Context, id int64) (model.Assembly, error) {
	var a model.Assembly
	var notes pgtype.Text
	err := s.db.QueryRow(ctx,
		`SELECT id, project_id, rev, notes, test_mode, created_at
		   FROM assemblies WHERE id = $1`, id,
	).Scan(&a.ID, &a.ProjectID, &a.Rev, &notes, &a.TestMode, &a.CreatedAt)
	if err != nil {
		return model.Assembly{}, fmt.Errorf("get assembly %d: %w", id, mapErr(err))
	}
	a.Notes = notes.String
	return a, nil
}

func (s *Store) UpdateAssemblyTestMode(ctx context.Context, id int64, mode model.TestMode) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE assemblies SET test_mode = $2 WHERE id = $1`, id, mode)
	if err != nil {
		return fmt.Errorf("update assembly %d test mode: %w", id, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update assembly %d test mode: %w", id, store.ErrNotFound)
	}
	return nil
}

const partColumns = `id, part_number, description, package, value, function,
	active_passive, power_required, datasheet_url, product_url,
	tol_p, tol_n, created_at`

func scanPart(row pgx.Row) (model.Part, error) {
	var p model.Part
	var desc, pkg, value, fn, dsURL, prodURL, tolP, tolN pgtype.Text
	err := row.Scan(&p.ID, &p.PartNumber, &desc, &pkg, &value, &fn,
		&p.ActivePassive, &p.PowerRequired, &dsURL, &prodURL,
		&tolP, &tolN, &p.CreatedAt)
	if err != nil {
		return model.Part{}, err
	}
	p.Description = desc.String
	p.Package = pkg.String
	p.Value = value.String
	p.Function = fn.String
	p.DatasheetURL = dsURL.String
	p.ProductURL = prodURL.String
	p.TolP = tolP.String
	p.TolN = tolN.String
	return p, nil
}

func (s *Store) GetPart(ctx context.Context, id int64) (model.Part, error) {
	p, err := scanPart(s.db.QueryRow(ctx,
		`SELECT `+partColumns+` FROM parts WHERE id = $1`, id))
	if err != nil {
		return model.Part{}, fmt.Errorf("get part %d: %w", id, mapErr(err))
	}
	return p, nil
}

// GetPartByNumber folds the number in SQL; the parts table carries a unique
// index on lower(part_number).
func (s *Store) GetPartByNumber(ctx context.Context, partNumber string) (model.Part, error) {
	p, err := scanPart(s.db.QueryRow(ctx,
		`SELECT `+partColumns+` FROM parts
		  WHERE lower(part_number) = lower(btrim($1))`, partNumber))
	if err != nil {
		return model.Part{}, fmt.Errorf("get part %q: %w", partNumber, mapErr(err))
	}
	return p, nil
}

func (s *Store) InsertPart(ctx context.Context, p *model.Part) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO parts (part_number, description, package, value, function,
		        active_passive, power_required, datasheet_url, product_url, tol_p, tol_n)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		strings.TrimSpace(p.PartNumber), toText(p.Description), toText(p.Package),
		toText(p.Value), toText(p.Function), p.ActivePassive, p.PowerRequired,
		toText(p.DatasheetURL), toText(p.ProductURL), toText(p.TolP), toText(p.TolN),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert part %q: %w", p.PartNumber, mapErr(err))
	}
	return nil
}

func (s *Store) InsertBOMItem(ctx context.Context, item *model.BOMItem) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO bom_items (assembly_id, part_id, reference, qty, manufacturer,
		        unit_cost, currency, alt_part_number, is_fitted, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		item.AssemblyID, toInt8(item.PartID), toText(item.Reference), item.Qty,
		toText(item.Manufacturer), toNumeric(item.UnitCost), toText(item.Currency),
		toText(item.AltPartNumber), item.IsFitted, toText(item.Notes),
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert bom item %q: %w", item.Reference, mapErr(err))
	}
	return nil
}

func (s *Store) ListBOMItems(ctx context.Context, assemblyID int64) ([]model.BOMItem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, assembly_id, part_id, reference, qty, manufacturer,
		        unit_cost::text, currency, alt_part_number, is_fitted, notes
		   FROM bom_items WHERE assembly_id = $1 ORDER BY id`, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("list bom items: %w", mapErr(err))
	}
	defer rows.Close()

	var items []model.BOMItem
	for rows.Next() {
		var it model.BOMItem
		var partID pgtype.Int8
		var ref, manufacturer, cost, currency, alt, notes pgtype.Text
		if err := rows.Scan(&it.ID, &it.AssemblyID, &partID, &ref, &it.Qty,
			&manufacturer, &cost, &currency, &alt, &it.IsFitted, &notes); err != nil {
			return nil, fmt.Errorf("scan bom item: %w", err)
		}
		if partID.Valid {
			id := partID.Int64
			it.PartID = &id
		}
		it.Reference = ref.String
		it.Manufacturer = manufacturer.String
		it.Currency = currency.String
		it.AltPartNumber = alt.String
		it.Notes = notes.String
		if cost.Valid {
			d, derr := decimal.NewFromString(cost.String)
			if derr != nil {
				return nil, fmt.Errorf("parse unit cost %q: %w", cost.String, derr)
			}
			it.UnitCost = &d
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) ListPartTestMaps(ctx context.Context, partIDs []int64) ([]model.PartTestMap, error) {
	if len(partIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT part_id, power_mode, profile, kind, test_macro_id, script_test_id, detail
		   FROM part_test_maps WHERE part_id = ANY($1)`, partIDs)
	if err != nil {
		return nil, fmt.Errorf("list part test maps: %w", mapErr(err))
	}
	defer rows.Close()

	var maps []model.PartTestMap
	for rows.Next() {
		var m model.PartTestMap
		var macroID, scriptID pgtype.Int8
		var detail pgtype.Text
		if err := rows.Scan(&m.PartID, &m.PowerMode, &m.Profile, &m.Kind,
			&macroID, &scriptID, &detail); err != nil {
			return nil, fmt.Errorf("scan part test map: %w", err)
		}
		if macroID.Valid {
			id := macroID.Int64
			m.TestMacroID = &id
		}
		if scriptID.Valid {
			id := scriptID.Int64
			m.ScriptTestID = &id
		}
		m.Detail = detail.String
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

func (s *Store) InsertPartTestMap(ctx context.Context, m model.PartTestMap) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO part_test_maps (part_id, power_mode, profile, kind,
		        test_macro_id, script_test_id, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.PartID, m.PowerMode, m.Profile, m.Kind,
		toInt8(m.TestMacroID), toInt8(m.ScriptTestID), toText(m.Detail))
	if err != nil {
		return fmt.Errorf("insert part test map: %w", mapErr(err))
	}
	return nil
}

func (s *Store) ListTestOverrides(ctx context.Context, bomItemIDs []int64) ([]model.TestOverride, error) {
	if len(bomItemIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT bom_item_id, power_mode, kind, test_macro_id, script_test_id, detail
		   FROM bom_item_test_overrides WHERE bom_item_id = ANY($1)`, bomItemIDs)
	if err != nil {
		return nil, fmt.Errorf("list test overrides: %w", mapErr(err))
	}
	defer rows.Close()

	var overrides []model.TestOverride
	for rows.Next() {
		var o model.TestOverride
		var macroID, scriptID pgtype.Int8
		var detail pgtype.Text
		if err := rows.Scan(&o.BOMItemID, &o.PowerMode, &o.Kind,
			&macroID, &scriptID, &detail); err != nil {
			return nil, fmt.Errorf("scan test override: %w", err)
		}
		if macroID.Valid {
			id := macroID.Int64
			o.TestMacroID = &id
		}
		if scriptID.Valid {
			id := scriptID.Int64
			o.ScriptTestID = &id
		}
		o.Detail = detail.String
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (s *Store) InsertTestOverride(ctx context.Context, o model.TestOverride) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO bom_item_test_overrides (bom_item_id, power_mode, kind,
		        test_macro_id, script_test_id, detail)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (bom_item_id, power_mode) DO UPDATE
		    SET kind = EXCLUDED.kind,
		        test_macro_id = EXCLUDED.test_macro_id,
		        script_test_id = EXCLUDED.script_test_id,
		        detail = EXCLUDED.detail`,
		o.BOMItemID, o.PowerMode, o.Kind,
		toInt8(o.TestMacroID), toInt8(o.ScriptTestID), toText(o.Detail))
	if err != nil {
		return fmt.Errorf("insert test override: %w", mapErr(err))
	}
	return nil
}

func (s *Store) InsertTask(ctx context.Context, t *model.Task) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO tasks (project_id, title, description, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		t.ProjectID, t.Title, toText(t.Description), t.Status,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", mapErr(err))
	}
	return nil
}

// toText maps empty strings to SQL NULL.
func toText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func toNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{}
	}
	return n
}

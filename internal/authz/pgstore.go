package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-rbac/aegis/internal/platform/db"
)

// graphLockKey is the advisory lock namespace serializing graph-shape
// mutations across instances. Cycle checks need a write-consistent view of
// the full edge set, which a single statement cannot give.
const graphLockKey = 0x41454749 // "AEGI"

const pgSchema = `
CREATE TABLE IF NOT EXISTS auth_rule (
	name       text PRIMARY KEY,
	data       bytea,
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS auth_item (
	name        text PRIMARY KEY,
	type        smallint NOT NULL,
	description text NOT NULL DEFAULT '',
	rule_name   text REFERENCES auth_rule(name),
	data        bytea,
	created_at  timestamptz NOT NULL,
	updated_at  timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS auth_item_type_idx ON auth_item(type);

CREATE TABLE IF NOT EXISTS auth_item_child (
	parent text NOT NULL REFERENCES auth_item(name) ON DELETE CASCADE,
	child  text NOT NULL REFERENCES auth_item(name) ON DELETE CASCADE,
	PRIMARY KEY (parent, child)
);

CREATE TABLE IF NOT EXISTS auth_assignment (
	item_name  text NOT NULL REFERENCES auth_item(name) ON DELETE CASCADE,
	user_id    text NOT NULL,
	created_at timestamptz NOT NULL,
	PRIMARY KEY (item_name, user_id)
);
CREATE INDEX IF NOT EXISTS auth_assignment_user_idx ON auth_assignment(user_id);

CREATE TABLE IF NOT EXISTS auth_graph_version (
	id      smallint PRIMARY KEY CHECK (id = 1),
	version bigint NOT NULL DEFAULT 0
);
INSERT INTO auth_graph_version (id, version) VALUES (1, 0) ON CONFLICT DO NOTHING;
`

// PGStore provides PostgreSQL backed persistence. Table layout mirrors the
// classic four-table auth schema (item, rule, item_child, assignment).
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a store over the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the auth tables when absent.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("authz: ensure schema: %w", err)
	}
	return nil
}

// CreateItem implements Store.
func (s *PGStore) CreateItem(ctx context.Context, item Item) (Item, error) {
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO auth_item (name, type, description, rule_name, data, created_at, updated_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`,
			item.Name, int16(item.Type), item.Description, item.RuleName, item.Data, item.CreatedAt, item.UpdatedAt)
		if err != nil {
			return mapPGError(err, ErrDuplicateName, ErrRuleNotFound)
		}
		return bumpVersion(ctx, tx)
	})
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

// GetItem implements Store.
func (s *PGStore) GetItem(ctx context.Context, name string) (Item, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, type, description, COALESCE(rule_name, ''), data, created_at, updated_at
		FROM auth_item WHERE name = $1`, name)
	return scanItem(row)
}

// UpdateItem implements Store. Name and type are immutable.
func (s *PGStore) UpdateItem(ctx context.Context, item Item) (Item, error) {
	var updated Item
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE auth_item
			SET description = $2, rule_name = NULLIF($3, ''), data = $4, updated_at = $5
			WHERE name = $1
			RETURNING name, type, description, COALESCE(rule_name, ''), data, created_at, updated_at`,
			item.Name, item.Description, item.RuleName, item.Data, time.Now().UTC())
		var err error
		updated, err = scanItem(row)
		if err != nil {
			return mapPGError(err, ErrDuplicateName, ErrRuleNotFound)
		}
		return bumpVersion(ctx, tx)
	})
	if err != nil {
		return Item{}, err
	}
	return updated, nil
}

// ListItems implements Store.
func (s *PGStore) ListItems(ctx context.Context, typ *ItemType) ([]Item, error) {
	query := `
		SELECT name, type, description, COALESCE(rule_name, ''), data, created_at, updated_at
		FROM auth_item`
	args := []any{}
	if typ != nil {
		query += ` WHERE type = $1`
		args = append(args, int16(*typ))
	}
	query += ` ORDER BY name`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteItem implements Store. The ON DELETE CASCADE constraints remove edges
// and assignments in the same transaction.
func (s *PGStore) DeleteItem(ctx context.Context, name string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, graphLockKey); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM auth_item WHERE name = $1`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrItemNotFound
		}
		return bumpVersion(ctx, tx)
	})
}

// CreateRule implements Store.
func (s *PGStore) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_rule (name, data, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		rule.Name, rule.Data, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return Rule{}, mapPGError(err, ErrDuplicateName, nil)
	}
	return rule, nil
}

// GetRule implements Store.
func (s *PGStore) GetRule(ctx context.Context, name string) (Rule, error) {
	var rule Rule
	err := s.pool.QueryRow(ctx, `
		SELECT name, data, created_at, updated_at FROM auth_rule WHERE name = $1`, name).
		Scan(&rule.Name, &rule.Data, &rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrRuleNotFound
	}
	if err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// ListRules implements Store.
func (s *PGStore) ListRules(ctx context.Context) ([]Rule, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, data, created_at, updated_at FROM auth_rule ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.Name, &rule.Data, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteRule implements Store. Referencing items block deletion.
func (s *PGStore) DeleteRule(ctx context.Context, name string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var inUse bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM auth_item WHERE rule_name = $1)`, name).Scan(&inUse); err != nil {
			return err
		}
		if inUse {
			return ErrRuleInUse
		}
		tag, err := tx.Exec(ctx, `DELETE FROM auth_rule WHERE name = $1`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrRuleNotFound
		}
		return nil
	})
}

// AddChild implements Store. The reachability check and the insert run inside
// one transaction holding the graph advisory lock, so two concurrent inserts
// cannot assemble a cycle between them.
func (s *PGStore) AddChild(ctx context.Context, parent, child string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, graphLockKey); err != nil {
			return err
		}
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM auth_item WHERE name = ANY($1)`,
			[]string{parent, child}).Scan(&count); err != nil {
			return err
		}
		want := 2
		if parent == child {
			want = 1
		}
		if count < want {
			return ErrItemNotFound
		}
		if parent == child {
			return ErrCycle
		}
		var cyclic bool
		err := tx.QueryRow(ctx, `
			WITH RECURSIVE reach(name) AS (
				SELECT child FROM auth_item_child WHERE parent = $1
				UNION
				SELECT c.child FROM auth_item_child c JOIN reach r ON c.parent = r.name
			)
			SELECT EXISTS (SELECT 1 FROM reach WHERE name = $2)`, child, parent).Scan(&cyclic)
		if err != nil {
			return err
		}
		if cyclic {
			return ErrCycle
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO auth_item_child (parent, child) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			parent, child); err != nil {
			return err
		}
		return bumpVersion(ctx, tx)
	})
}

// RemoveChild implements Store.
func (s *PGStore) RemoveChild(ctx context.Context, parent, child string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM auth_item_child WHERE parent = $1 AND child = $2`, parent, child)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrEdgeNotFound
		}
		return bumpVersion(ctx, tx)
	})
}

// CreateAssignment implements Store.
func (s *PGStore) CreateAssignment(ctx context.Context, userID, itemName string) (Assignment, error) {
	a := Assignment{ItemName: itemName, UserID: userID, CreatedAt: time.Now().UTC()}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_assignment (item_name, user_id, created_at) VALUES ($1, $2, $3)`,
		a.ItemName, a.UserID, a.CreatedAt)
	if err != nil {
		return Assignment{}, mapPGError(err, ErrDuplicateAssignment, ErrItemNotFound)
	}
	return a, nil
}

// DeleteAssignment implements Store.
func (s *PGStore) DeleteAssignment(ctx context.Context, userID, itemName string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM auth_assignment WHERE user_id = $1 AND item_name = $2`, userID, itemName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAssigned
	}
	return nil
}

// DeleteAssignmentsForUser implements Store. Idempotent.
func (s *PGStore) DeleteAssignmentsForUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM auth_assignment WHERE user_id = $1`, userID)
	return err
}

// AssignmentsForUser implements Store.
func (s *PGStore) AssignmentsForUser(ctx context.Context, userID string) ([]Assignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT item_name, user_id, created_at FROM auth_assignment WHERE user_id = $1 ORDER BY item_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// ListAssignments implements Store.
func (s *PGStore) ListAssignments(ctx context.Context) ([]Assignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT item_name, user_id, created_at FROM auth_assignment ORDER BY user_id, item_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// State implements Store. Items, rules, edges and the graph version are read
// in one RepeatableRead transaction so the snapshot is internally consistent
// and the version genuinely belongs to the data it accompanies.
func (s *PGStore) State(ctx context.Context) (*State, error) {
	state := NewState()
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT version FROM auth_graph_version WHERE id = 1`).Scan(&state.Version); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT name, type, description, COALESCE(rule_name, ''), data, created_at, updated_at FROM auth_item`)
		if err != nil {
			return err
		}
		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				rows.Close()
				return err
			}
			state.Items[item.Name] = item
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `SELECT name, data, created_at, updated_at FROM auth_rule`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var rule Rule
			if err := rows.Scan(&rule.Name, &rule.Data, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
				rows.Close()
				return err
			}
			state.Rules[rule.Name] = rule
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `SELECT parent, child FROM auth_item_child`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var parent, child string
			if err := rows.Scan(&parent, &child); err != nil {
				rows.Close()
				return err
			}
			state.AddEdge(parent, child)
		}
		rows.Close()
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func bumpVersion(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `UPDATE auth_graph_version SET version = version + 1 WHERE id = 1`)
	return err
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	var typ int16
	err := row.Scan(&item.Name, &typ, &item.Description, &item.RuleName, &item.Data, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, err
	}
	item.Type = ItemType(typ)
	return item, nil
}

func scanAssignments(rows pgx.Rows) ([]Assignment, error) {
	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ItemName, &a.UserID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// mapPGError translates constraint violations into the domain taxonomy:
// 23505 (unique) to onUnique, 23503 (foreign key) to onFK.
func mapPGError(err error, onUnique, onFK error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if onUnique != nil {
				return onUnique
			}
		case "23503":
			if onFK != nil {
				return onFK
			}
		}
	}
	return err
}

package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/lychee-technology/tabula"
)

type entityPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresEntityStore persists entities as one JSONB document per row.
// Attribute values live in the data column; id and timestamps are table
// columns and are merged into the returned entity.
type PostgresEntityStore struct {
	pool      entityPool
	registry  tabula.SchemaRegistry
	tableName string
}

func NewPostgresEntityStore(pool entityPool, registry tabula.SchemaRegistry, tableName string) *PostgresEntityStore {
	return &PostgresEntityStore{
		pool:      pool,
		registry:  registry,
		tableName: tableName,
	}
}

// EnsureSchema creates the entity table and its schema index when absent.
func (s *PostgresEntityStore) EnsureSchema(ctx context.Context) error {
	table := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
id BIGSERIAL PRIMARY KEY,
schema_uid TEXT NOT NULL,
data JSONB NOT NULL DEFAULT '{}'::jsonb,
created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.tableName)
	if _, err := s.pool.Exec(ctx, table); err != nil {
		return fmt.Errorf("ensure entity table: %w", err)
	}

	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_schema_uid_idx ON %s (schema_uid)",
		s.tableName, s.tableName)
	if _, err := s.pool.Exec(ctx, index); err != nil {
		return fmt.Errorf("ensure schema_uid index: %w", err)
	}
	return nil
}

func (s *PostgresEntityStore) Create(ctx context.Context, schemaUID string, data map[string]any) (tabula.Entity, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal entity data: %w", err)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (schema_uid, data)
VALUES ($1, $2)
RETURNING id, data, created_at, updated_at`,
		s.tableName,
	)

	entity, err := s.scanEntity(s.pool.QueryRow(ctx, query, schemaUID, payload))
	if err != nil {
		return nil, fmt.Errorf("failed to insert entity: %w", err)
	}
	return entity, nil
}

func (s *PostgresEntityStore) Update(ctx context.Context, schemaUID string, id any, data map[string]any) (tabula.Entity, error) {
	entityID, err := coerceEntityID(id)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal entity data: %w", err)
	}

	// Merge semantics: fields absent from data keep their stored value.
	query := fmt.Sprintf(
		`UPDATE %s
SET data = data || $3::jsonb, updated_at = now()
WHERE id = $1 AND schema_uid = $2
RETURNING id, data, created_at, updated_at`,
		s.tableName,
	)

	entity, err := s.scanEntity(s.pool.QueryRow(ctx, query, entityID, schemaUID, payload))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("entity %v not found in schema %s", id, schemaUID)
		}
		return nil, fmt.Errorf("failed to update entity: %w", err)
	}
	return entity, nil
}

func (s *PostgresEntityStore) FindMany(ctx context.Context, schemaUID string, opts tabula.FindOptions) ([]tabula.Entity, error) {
	conditions := []string{"schema_uid = $1"}
	args := []any{schemaUID}

	for _, filter := range opts.Filters {
		condition, arg, err := s.buildCondition(filter, len(args)+1)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, condition)
		args = append(args, arg)
	}

	query := fmt.Sprintf(
		`SELECT id, data, created_at, updated_at
FROM %s
WHERE %s
ORDER BY id ASC`,
		s.tableName,
		strings.Join(conditions, " AND "),
	)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	entities := make([]tabula.Entity, 0)
	for rows.Next() {
		entity, err := s.scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	if opts.Populate {
		s.populate(ctx, schemaUID, entities)
	}
	return entities, nil
}

// buildCondition renders one filter as a parameterized predicate. The id
// column is matched directly; attribute values go through the JSONB text
// extraction operator.
func (s *PostgresEntityStore) buildCondition(filter tabula.Filter, argIndex int) (string, any, error) {
	if filter.Field == "id" {
		entityID, err := coerceEntityID(filter.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("(id = $%d)", argIndex), entityID, nil
	}

	column := fmt.Sprintf("data->>'%s'", strings.ReplaceAll(filter.Field, "'", "''"))
	value := fmt.Sprintf("%v", filter.Value)

	switch filter.Op {
	case tabula.OpEq:
		return fmt.Sprintf("(%s = $%d)", column, argIndex), value, nil
	case tabula.OpEqCI:
		return fmt.Sprintf("(lower(%s) = lower($%d))", column, argIndex), value, nil
	case tabula.OpContainsCI:
		return fmt.Sprintf("(%s ILIKE '%%' || $%d || '%%')", column, argIndex), value, nil
	default:
		return "", nil, fmt.Errorf("unsupported filter operator: %s", filter.Op)
	}
}

// populate embeds related entities in place of stored relation ids. Misses
// and lookup failures leave the raw id; population never fails the find.
func (s *PostgresEntityStore) populate(ctx context.Context, schemaUID string, entities []tabula.Entity) {
	schema, err := s.registry.Schema(schemaUID)
	if err != nil {
		zap.S().Debugw("populate skipped, schema unavailable", "schema", schemaUID, "error", err)
		return
	}

	for _, name := range schema.AttributeOrder {
		attr, _ := schema.Attribute(name)
		if attr.Type != tabula.TypeRelation || attr.Target == "" {
			continue
		}
		for _, entity := range entities {
			raw, ok := entity[name]
			if !ok || raw == nil {
				continue
			}
			if ids, isMany := raw.([]any); isMany {
				related := make([]any, 0, len(ids))
				for _, id := range ids {
					related = append(related, s.fetchRelated(ctx, attr.Target, id))
				}
				entity[name] = related
			} else {
				entity[name] = s.fetchRelated(ctx, attr.Target, raw)
			}
		}
	}
}

// fetchRelated loads one related entity by id, falling back to the raw id
// when the lookup misses or fails.
func (s *PostgresEntityStore) fetchRelated(ctx context.Context, targetUID string, id any) any {
	found, err := s.FindMany(ctx, targetUID, tabula.FindOptions{
		Filters: []tabula.Filter{{Field: "id", Op: tabula.OpEq, Value: id}},
		Limit:   1,
	})
	if err != nil {
		zap.S().Debugw("related entity lookup failed", "target", targetUID, "id", id, "error", err)
		return id
	}
	if len(found) == 0 {
		return id
	}
	return found[0]
}

type entityScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresEntityStore) scanEntity(row entityScanner) (tabula.Entity, error) {
	var (
		id        int64
		payload   []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &payload, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	entity := tabula.Entity{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &entity); err != nil {
			return nil, fmt.Errorf("decode entity data: %w", err)
		}
	}
	entity["id"] = id
	entity["createdAt"] = createdAt.UTC().Format(time.RFC3339)
	entity["updatedAt"] = updatedAt.UTC().Format(time.RFC3339)
	return entity, nil
}

// coerceEntityID normalizes the id representations seen across the pipeline
// (CSV strings, JSON numbers, store int64s) onto the bigint key column.
func coerceEntityID(id any) (int64, error) {
	switch v := id.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid entity id %q", v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported entity id type %T", id)
	}
}

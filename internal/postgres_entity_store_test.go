package internal

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/tabula"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresEntityStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresEntityStore(mock, newTestRegistry(), "tabula_entities")
}

func entityRows(id int64, payload string, at time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "data", "created_at", "updated_at"}).
		AddRow(id, []byte(payload), at, at)
}

func TestPostgresCreate(t *testing.T) {
	mock, store := newMockStore(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tabula_entities (schema_uid, data)")).
		WithArgs("api::country.country", pgxmock.AnyArg()).
		WillReturnRows(entityRows(1, `{"name":"India"}`, at))

	entity, err := store.Create(context.Background(), "api::country.country", map[string]any{"name": "India"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), entity.ID())
	assert.Equal(t, "India", entity["name"])
	assert.Equal(t, "2024-05-01T12:00:00Z", entity["createdAt"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateMergesData(t *testing.T) {
	mock, store := newMockStore(t)
	at := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SET data = data || $3::jsonb")).
		WithArgs(int64(5), "api::country.country", pgxmock.AnyArg()).
		WillReturnRows(entityRows(5, `{"name":"India","code":"IND"}`, at))

	entity, err := store.Update(context.Background(), "api::country.country", "5", map[string]any{"code": "IND"})
	require.NoError(t, err)
	assert.Equal(t, "IND", entity["code"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateRejectsBadID(t *testing.T) {
	_, store := newMockStore(t)

	_, err := store.Update(context.Background(), "api::country.country", "not-a-number", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid entity id")
}

func TestPostgresFindManyFilters(t *testing.T) {
	mock, store := newMockStore(t)
	at := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("(lower(data->>'name') = lower($2))")).
		WithArgs("api::country.country", "india", 1).
		WillReturnRows(entityRows(1, `{"name":"India"}`, at))

	entities, err := store.FindMany(context.Background(), "api::country.country", tabula.FindOptions{
		Filters: []tabula.Filter{{Field: "name", Op: tabula.OpEqCI, Value: "india"}},
		Limit:   1,
	})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "India", entities[0]["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindManyByID(t *testing.T) {
	mock, store := newMockStore(t)
	at := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("(id = $2)")).
		WithArgs("api::country.country", int64(7)).
		WillReturnRows(entityRows(7, `{"name":"India"}`, at))

	entities, err := store.FindMany(context.Background(), "api::country.country", tabula.FindOptions{
		Filters: []tabula.Filter{{Field: "id", Op: tabula.OpEq, Value: "7"}},
	})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindManyUnsupportedOperator(t *testing.T) {
	_, store := newMockStore(t)

	_, err := store.FindMany(context.Background(), "api::country.country", tabula.FindOptions{
		Filters: []tabula.Filter{{Field: "name", Op: tabula.FilterOp("$gt"), Value: "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported filter operator")
}

func TestPostgresPopulateEmbedsRelations(t *testing.T) {
	mock, store := newMockStore(t)
	at := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, data, created_at, updated_at")).
		WithArgs("api::country.country").
		WillReturnRows(entityRows(1, `{"name":"India","capital":7}`, at))
	// related lookup issued by populate
	mock.ExpectQuery(regexp.QuoteMeta("(id = $2)")).
		WithArgs("api::city.city", int64(7), 1).
		WillReturnRows(entityRows(7, `{"name":"New Delhi"}`, at))

	entities, err := store.FindMany(context.Background(), "api::country.country", tabula.FindOptions{Populate: true})
	require.NoError(t, err)
	require.Len(t, entities, 1)

	capital, ok := entities[0]["capital"].(tabula.Entity)
	require.True(t, ok, "populated relation must embed the related entity")
	assert.Equal(t, "New Delhi", capital["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPopulateLookupFailureKeepsID(t *testing.T) {
	mock, store := newMockStore(t)
	at := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, data, created_at, updated_at")).
		WithArgs("api::country.country").
		WillReturnRows(entityRows(1, `{"name":"India","capital":7}`, at))
	mock.ExpectQuery(regexp.QuoteMeta("(id = $2)")).
		WithArgs("api::city.city", int64(7), 1).
		WillReturnError(assert.AnError)

	entities, err := store.FindMany(context.Background(), "api::country.country", tabula.FindOptions{Populate: true})
	require.NoError(t, err)
	assert.Equal(t, float64(7), entities[0]["capital"], "failed lookups leave the stored id")
}

func TestPostgresEnsureSchema(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS tabula_entities")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS tabula_entities_schema_uid_idx")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCoerceEntityID(t *testing.T) {
	id, err := coerceEntityID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = coerceEntityID(float64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = coerceEntityID(struct{}{})
	require.Error(t, err)
}

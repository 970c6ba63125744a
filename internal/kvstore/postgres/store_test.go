package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestSetUpsertsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "kv")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO kv").
		WithArgs("quota", []byte(`{"count":1}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Set(context.Background(), map[string][]byte{"quota": []byte(`{"count":1}`)})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsPresentKeysOnly(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "kv")
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"key", "value"}).
		AddRow("license", []byte(`{"is_paid":true}`))
	mock.ExpectQuery("SELECT key, value FROM kv").
		WithArgs([]string{"license", "missing"}).
		WillReturnRows(rows)

	got, err := store.Get(context.Background(), "license", "missing")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.JSONEq(t, `{"is_paid":true}`, string(got["license"]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRemovesKeys(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "kv")
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM kv").
		WithArgs([]string{"cache/https://example.com/a"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err = store.Delete(context.Background(), "cache/https://example.com/a")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeysListsByPrefix(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "kv")
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"key"}).
		AddRow("cache/https://a.example/x").
		AddRow("cache/https://b.example/y")
	mock.ExpectQuery("SELECT key FROM kv").
		WithArgs("cache/").
		WillReturnRows(rows)

	got, err := store.Keys(context.Background(), "cache/")
	require.NoError(t, err)
	require.Equal(t, []string{"cache/https://a.example/x", "cache/https://b.example/y"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectsInvalidTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "kv; DROP TABLE users")
	require.Error(t, err)
}

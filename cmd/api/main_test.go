// AngelaMos | 2026
// main_test.go

package main

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/eternal-vault/internal/core"
)

type failingCloser struct{ calls int }

func (f *failingCloser) Close() error {
	f.calls++
	return errors.New("already closed")
}

func TestCloseOnExitClosesDatabasePool(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	closeOnExit(logger, "database", &core.Database{DB: sqlx.NewDb(sqlDB, "sqlmock")})

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, buf.String())
}

func TestCloseOnExitLogsCloseErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	c := &failingCloser{}

	closeOnExit(logger, "redis", c)

	assert.Equal(t, 1, c.calls)
	assert.Contains(t, buf.String(), "redis close error")
	assert.Contains(t, buf.String(), "already closed")
}

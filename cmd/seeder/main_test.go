package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/voicedrop-backend/internal/logger"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestSeedFilesSorted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "20_scripts.sql", "SELECT 2;")
	writeFile(t, dir, "10_users.sql", "SELECT 1;")
	writeFile(t, dir, "notes.txt", "ignored")

	files, err := seedFiles(dir)

	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "10_users.sql", filepath.Base(files[0]))
	assert.Equal(t, "20_scripts.sql", filepath.Base(files[1]))
}

func TestApply(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "schema.sql", "CREATE TABLE users (id TEXT);")
	seed := writeFile(t, dir, "seed.sql", "INSERT INTO users VALUES ('u1');")

	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("CREATE TABLE users (id TEXT);").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO users VALUES ('u1');").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, apply(context.Background(), conn, []string{schema, seed}, logger.NewTestLogger(t)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_MissingFile(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	err = apply(context.Background(), conn, []string{filepath.Join(t.TempDir(), "absent.sql")}, logger.NewNoOpLogger())

	assert.ErrorContains(t, err, "failed to read")
}

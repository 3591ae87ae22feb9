package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "zip_demographics", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"zip_demographics"}, []string{"zip_code", "population"}).WillReturnResult(3)

	rows := [][]any{{"00501", 10}, {"02134", 20}, {"10001", 30}}
	n, err := CopyFrom(context.Background(), mock, "zip_demographics", []string{"zip_code", "population"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_SchemaQualified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"geo", "zip_demographics"}, []string{"zip_code"}).WillReturnResult(1)

	n, err := CopyFrom(context.Background(), mock, "geo.zip_demographics", []string{"zip_code"}, [][]any{{"00501"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"zip_demographics"}, []string{"zip_code"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyFrom(context.Background(), mock, "zip_demographics", []string{"zip_code"}, [][]any{{"00501"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into zip_demographics")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_RowWidthMismatch(t *testing.T) {
	_, err := CopyFrom(context.Background(), nil, "zip_demographics", []string{"a", "b"}, [][]any{{1, 2}, {3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1 has 1 values, want 2")

	_, err = CopyFrom(context.Background(), nil, "zip_demographics", nil, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")
}

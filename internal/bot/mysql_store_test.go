package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := NewMySQLStore(db)
	require.NoError(t, err)
	store.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	t.Cleanup(func() { _ = db.Close() })
	return store, mock
}

var jobRowColumns = []string{"id", "sub_id", "strategy_index", "trigger_call_data", "actions_call_data", "status",
	"attempts", "max_retries", "last_error", "error_code", "created_at", "updated_at"}

func TestMySQLStoreCreateEncodesCallData(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO bot_jobs`).
		WithArgs("job-1", sqlmock.AnyArg(), 0, `["0x01ff"]`, `[]`, "pending", 0, 3, int64(1_700_000_000), int64(1_700_000_000)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &Job{ID: "job-1", SubID: 7, Status: StatusPending, MaxRetries: 3,
		TriggerCallData: []hexutil.Bytes{{0x01, 0xff}}}
	require.NoError(t, store.Create(context.Background(), job))
	require.Equal(t, int64(1_700_000_000), job.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreDuplicateIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO bot_jobs`).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := store.Create(context.Background(), &Job{ID: "job-1", Status: StatusPending})
	require.True(t, errors.Is(err, ErrJobConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreClaim(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE bot_jobs SET status = \?, attempts = attempts \+ 1`).
		WithArgs("running", sqlmock.AnyArg(), "job-1", "pending", "retrying").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM bot_jobs WHERE id = \?`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-1", int64(7), int64(1), `["0xaa"]`, `["0xbb","0x"]`, "running", 1, 3, "", "", int64(1), int64(2)))

	job, err := store.Claim(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, uint64(7), job.SubID)
	require.Equal(t, 1, job.StrategyIndex)
	require.Equal(t, StatusRunning, job.Status)
	require.Equal(t, []hexutil.Bytes{{0xaa}}, job.TriggerCallData)
	require.Len(t, job.ActionsCallData, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreClaimFinishedJob(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE bot_jobs`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM bot_jobs WHERE id = \?`).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-1", int64(7), int64(0), nil, nil, "skipped", 1, 3, "not enabled", "SUB_NOT_ENABLED", int64(1), int64(2)))

	job, err := store.Claim(context.Background(), "job-1")
	require.True(t, errors.Is(err, ErrJobCompleted))
	require.Equal(t, StatusSkipped, job.Status)
	require.Nil(t, job.TriggerCallData)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreMarkFailed(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE bot_jobs SET status = \?, last_error = \?, error_code = \?`).
		WithArgs("retrying", "boom", "JOB_PROCESSING_FAILED", sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bot_jobs SET status = \?, last_error = \?, error_code = \?`).
		WithArgs("failed", "boom", "JOB_PROCESSING_FAILED", sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.MarkFailed(context.Background(), "job-1", "JOB_PROCESSING_FAILED", "boom", false))
	err := store.MarkFailed(context.Background(), "missing", "JOB_PROCESSING_FAILED", "boom", true)
	require.True(t, errors.Is(err, ErrJobNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreListFilters(t *testing.T) {
	store, mock := newMockStore(t)
	subID := uint64(4)
	mock.ExpectQuery(`FROM bot_jobs WHERE status IN \(\?,\?\) AND sub_id = \? ORDER BY updated_at DESC`).
		WithArgs("failed", "skipped", sqlmock.AnyArg(), 20, 0).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-2", int64(4), int64(0), `[]`, `[]`, "failed", 3, 3, "x", "UNKNOWN", int64(1), int64(5)))

	jobs, err := store.List(context.Background(), ListOptions{
		Statuses: []Status{StatusFailed, "bogus", StatusSkipped},
		SubID:    &subID,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "job-2", jobs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreCloseRespectsSharedPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	shared, err := NewSharedMySQLStore(db)
	require.NoError(t, err)
	require.NoError(t, shared.Close())

	owned, err := NewMySQLStore(db)
	require.NoError(t, err)
	mock.ExpectClose()
	require.NoError(t, owned.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

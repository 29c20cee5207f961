package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

func newNotificationRepo(t *testing.T) (*NotificationRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewNotificationRepo(postgres.NewConnectionWithDB(db, nil), nil), mock
}

func notificationRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows(notificationColumns)
	for _, id := range ids {
		rows.AddRow(id, uuid.NewString(), "owner-1", "patent", "US"+id[:4], "Cathode coating",
			testNow.Add(-48*time.Hour), "Acme Corp", 0.91, "High semantic similarity (0.910) to research",
			false, testNow, nil)
	}
	return rows
}

func TestNotificationRepo_ListByOwner_UnreadFilter(t *testing.T) {
	repo, mock := newNotificationRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM alert_notifications WHERE owner_id = \\$1 AND is_read = \\$2 ORDER BY created_at DESC, id DESC LIMIT 50").
		WithArgs("owner-1", false).
		WillReturnRows(notificationRows(uuid.NewString()))

	list, err := repo.ListByOwner(context.Background(), "owner-1", true, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Acme Corp", list[0].SourceOrAssignee)
	assert.Nil(t, list[0].PublishedAt)

	mock.ExpectQuery("SELECT (.+) FROM alert_notifications WHERE owner_id = \\$1 ORDER BY created_at DESC, id DESC LIMIT 200").
		WithArgs("owner-1").
		WillReturnRows(notificationRows())

	list, err = repo.ListByOwner(context.Background(), "owner-1", false, 1000)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNotificationRepo_ListByAlert(t *testing.T) {
	repo, mock := newNotificationRepo(t)
	alertID := uuid.NewString()

	mock.ExpectQuery("FROM alert_notifications WHERE alert_id = \\$1 ORDER BY created_at DESC, id DESC LIMIT 10").
		WithArgs(alertID).
		WillReturnRows(notificationRows(uuid.NewString(), uuid.NewString()))

	list, err := repo.ListByAlert(context.Background(), alertID, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestNotificationRepo_GetAndMarkRead(t *testing.T) {
	repo, mock := newNotificationRepo(t)
	id := uuid.NewString()

	mock.ExpectQuery("FROM alert_notifications WHERE id = \\$1").WithArgs(id).
		WillReturnRows(notificationRows(id))
	n, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, n.ID)

	mock.ExpectExec("UPDATE alert_notifications SET is_read = TRUE WHERE id = \\$1").WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkRead(context.Background(), id))

	mock.ExpectExec("UPDATE alert_notifications SET is_read").WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, errors.IsCode(repo.MarkRead(context.Background(), id), errors.ErrCodeNotificationNotFound))

	_, err = repo.Get(context.Background(), "bogus")
	assert.True(t, errors.IsNotFound(err))
}

func TestNotificationRepo_Outbox(t *testing.T) {
	repo, mock := newNotificationRepo(t)
	alertID := uuid.NewString()
	first, second := uuid.NewString(), uuid.NewString()

	mock.ExpectQuery("FROM alert_notifications WHERE alert_id = \\$1 AND published_at IS NULL ORDER BY created_at, id LIMIT 100").
		WithArgs(alertID).
		WillReturnRows(notificationRows(first, second))

	pending, err := repo.ListUnpublished(context.Background(), alertID, 100)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	mock.ExpectExec("UPDATE alert_notifications SET published_at = \\$1 WHERE id = ANY\\(\\$2\\) AND published_at IS NULL").
		WithArgs(testNow, pq.Array([]string{first, second})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.MarkPublished(context.Background(), []string{first, second}, testNow))

	// Nothing to mark issues no statement.
	require.NoError(t, repo.MarkPublished(context.Background(), nil, testNow))
}

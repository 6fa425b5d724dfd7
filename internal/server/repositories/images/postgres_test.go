package images

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func TestCreate_EmptyDescriptionIsNull(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+images\s*\(id,\s*title,\s*description,\s*image_key,\s*publisher_id,\s*published_on\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)$`).
		WithArgs("img-1", "Sunset", nil, "img-1.png", "pub", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.Create(context.Background(), &models.Image{
		ID: "img-1", Title: "Sunset", ImageKey: "img-1.png", PublisherID: "pub", PublishedOn: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*title,\s*description,\s*image_key,\s*publisher_id,\s*published_on,\s*approved_by,\s*approved_on\s+FROM\s+images\s+WHERE\s+id\s*=\s*\$1$`
	cols := []string{"id", "title", "description", "image_key", "publisher_id", "published_on", "approved_by", "approved_on"}
	pub := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	appr := pub.Add(time.Hour)

	mock.ExpectQuery(q).WithArgs("pending").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("pending", "T", nil, "k", "pub", pub, nil, nil))
	mock.ExpectQuery(q).WithArgs("approved").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("approved", "T", "desc", "k", "pub", pub, "mod", appr))
	mock.ExpectQuery(q).WithArgs("gone").WillReturnError(sql.ErrNoRows)

	img, err := repo.GetByID(context.Background(), "pending")
	require.NoError(t, err)
	assert.Nil(t, img.ApprovedBy)
	assert.Nil(t, img.ApprovedOn)
	assert.Equal(t, "", img.Description)

	img, err = repo.GetByID(context.Background(), "approved")
	require.NoError(t, err)
	require.NotNil(t, img.ApprovedBy)
	assert.Equal(t, "mod", *img.ApprovedBy)
	assert.True(t, img.ApprovedOn.Equal(appr))
	assert.Equal(t, "desc", img.Description)

	_, err = repo.GetByID(context.Background(), "gone")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestApprove_ConditionalUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+images\s+SET\s+approved_by\s*=\s*\$2,\s*approved_on\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1\s+AND\s+\(approved_on\s+IS\s+NULL\s+OR\s+approved_on\s*>=\s*\$3\)$`
	at := time.Now()
	mock.ExpectExec(q).WithArgs("img", "mod", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("img", "mod", at).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Approve(context.Background(), "img", "mod", at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Approve(context.Background(), "img", "mod", at)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^DELETE\s+FROM\s+images\s+WHERE\s+id\s*=\s*\$1$`
	mock.ExpectExec(q).WithArgs("img").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("img").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("img").WillReturnError(errors.New("db err"))

	require.NoError(t, repo.Delete(context.Background(), "img"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "img"), common.ErrorNotFound)
	assert.ErrorContains(t, repo.Delete(context.Background(), "img"), "db error: db err")
}

func TestCountApprovedByPublisher(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+images\s+WHERE\s+publisher_id\s*=\s*\$1\s+AND\s+approved_on\s+IS\s+NOT\s+NULL\s+AND\s+approved_on\s*<\s*\$2$`).
		WithArgs("pub", now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := repo.CountApprovedByPublisher(context.Background(), "pub", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestList_ApprovedByPublisherNewest(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	pub := now.Add(-48 * time.Hour)
	appr := now.Add(-24 * time.Hour)

	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM images i JOIN accounts a ON a\.id = i\.publisher_id WHERE a\.username = \$1 AND i\.approved_on IS NOT NULL AND i\.approved_on < \$2$`).
		WithArgs("petar", now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))
	mock.ExpectQuery(`^SELECT i\.id, .*COALESCE\(SUM\(v\.points\), 0\) FROM images i JOIN accounts a ON a\.id = i\.publisher_id LEFT JOIN votes v ON v\.image_id = i\.id WHERE a\.username = \$1 AND .* GROUP BY i\.id, a\.username ORDER BY i\.approved_on DESC NULLS LAST, i\.published_on DESC, i\.id LIMIT \$3 OFFSET \$4$`).
		WithArgs("petar", now, 4, 4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "image_key", "publisher_id", "username", "published_on", "approved_by", "approved_on", "points"}).
			AddRow("img-5", "Sunset", nil, "img-5.png", "pub", "petar", pub, "mod", appr, int64(125)))

	page, total, err := repo.List(context.Background(), models.ImageQuery{
		PublisherUserName: "petar",
		Publish:           models.PublishApproved,
		Order:             models.OrderNewest,
		Now:               now,
		Limit:             4,
		Offset:            4,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 1)
	assert.Equal(t, "img-5", page[0].ID)
	assert.Equal(t, "petar", page[0].PublisherUserName)
	assert.Equal(t, models.Points(125), page[0].Points)
	require.NotNil(t, page[0].ApprovedBy)
	assert.Equal(t, "mod", *page[0].ApprovedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_TopVotedUsesVoteWindow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	since := now.Add(-7 * 24 * time.Hour)

	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM images i .* WHERE i\.approved_on IS NOT NULL AND i\.approved_on < \$1 AND EXISTS \(SELECT 1 FROM votes w WHERE w\.image_id = i\.id AND w\.submitted_at >= \$2\)$`).
		WithArgs(now, since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`ORDER BY COALESCE\(SUM\(v\.points\) FILTER \(WHERE v\.submitted_at >= \$2\), 0\) DESC, i\.approved_on DESC, i\.id LIMIT \$3 OFFSET \$4$`).
		WithArgs(now, since, 4, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "image_key", "publisher_id", "username", "published_on", "approved_by", "approved_on", "points"}))

	page, total, err := repo.List(context.Background(), models.ImageQuery{
		Publish:    models.PublishApproved,
		Order:      models.OrderTopVotedLastWeek,
		Now:        now,
		VotesSince: since,
		Limit:      4,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Empty(t, page)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_VoteOrdersAndPending(t *testing.T) {
	tests := []struct {
		name    string
		publish models.PublishFilter
		order   models.OrderFilter
		where   string
	}{
		{"pending oldest", models.PublishPending, models.OrderOldest, `WHERE \(i\.approved_on IS NULL OR i\.approved_on >= \$1\)$`},
		{"all latest voted", models.PublishAll, models.OrderLatestVoted, `JOIN accounts a ON a\.id = i\.publisher_id$`},
		{"approved most voted", models.PublishApproved, models.OrderMostVoted, `WHERE i\.approved_on IS NOT NULL AND i\.approved_on < \$1$`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM images i ` + `.*` + tc.where).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

			page, total, err := repo.List(context.Background(), models.ImageQuery{
				Publish: tc.publish, Order: tc.order, Now: time.Now(), Limit: 4,
			})
			require.NoError(t, err)
			assert.Zero(t, total)
			assert.Nil(t, page)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestList_UnknownFilter(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	_, _, err := repo.List(context.Background(), models.ImageQuery{Publish: "BOGUS", Order: models.OrderNewest})
	assert.ErrorIs(t, err, common.ErrFilterNotAllowed)
	_, _, err = repo.List(context.Background(), models.ImageQuery{Publish: models.PublishAll, Order: "BOGUS"})
	assert.ErrorIs(t, err, common.ErrFilterNotAllowed)
}

func TestList_CountError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`^SELECT COUNT`).WillReturnError(errors.New("db err"))
	_, _, err := repo.List(context.Background(), models.ImageQuery{Publish: models.PublishAll, Order: models.OrderNewest, Limit: 4})
	assert.ErrorContains(t, err, "db error: db err")
}

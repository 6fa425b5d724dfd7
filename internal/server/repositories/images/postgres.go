package images

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/dbx"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, image *models.Image) (*models.Image, error) {
	query := `
		INSERT INTO images (id, title, description, image_key, publisher_id, published_on)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	description := sql.NullString{String: image.Description, Valid: image.Description != ""}
	_, err := r.db.ExecContext(ctx, query,
		image.ID, image.Title, description, image.ImageKey, image.PublisherID, image.PublishedOn)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}
	return image, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Image, error) {
	query := `
		SELECT id, title, description, image_key, publisher_id, published_on, approved_by, approved_on
		FROM images
		WHERE id = $1
	`
	var (
		img         models.Image
		description sql.NullString
		approvedBy  sql.NullString
		approvedOn  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&img.ID, &img.Title, &description, &img.ImageKey, &img.PublisherID, &img.PublishedOn, &approvedBy, &approvedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	img.Description = description.String
	if approvedBy.Valid {
		img.ApprovedBy = &approvedBy.String
	}
	if approvedOn.Valid {
		img.ApprovedOn = &approvedOn.Time
	}
	return &img, nil
}

func (r *PostgresRepository) Approve(ctx context.Context, id, approverID string, approvedOn time.Time) (bool, error) {
	query := `
		UPDATE images SET approved_by = $2, approved_on = $3
		WHERE id = $1 AND (approved_on IS NULL OR approved_on >= $3)
	`
	res, err := r.db.ExecContext(ctx, query, id, approverID, approvedOn)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

// Delete removes the image row; votes cascade. A missing row yields common.ErrorNotFound.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) CountApprovedByPublisher(ctx context.Context, publisherID string, now time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM images
		WHERE publisher_id = $1 AND approved_on IS NOT NULL AND approved_on < $2
	`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, publisherID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) List(ctx context.Context, q models.ImageQuery) ([]*models.GalleryImage, int64, error) {
	var (
		args  []any
		conds []string
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.PublisherUserName != "" {
		conds = append(conds, "a.username = "+arg(q.PublisherUserName))
	}
	switch q.Publish {
	case models.PublishApproved:
		conds = append(conds, "i.approved_on IS NOT NULL AND i.approved_on < "+arg(q.Now))
	case models.PublishPending:
		conds = append(conds, "(i.approved_on IS NULL OR i.approved_on >= "+arg(q.Now)+")")
	case models.PublishAll:
	default:
		return nil, 0, common.ErrFilterNotAllowed
	}

	var orderBy string
	switch q.Order {
	case models.OrderNewest:
		orderBy = "i.approved_on DESC NULLS LAST, i.published_on DESC, i.id"
	case models.OrderOldest:
		orderBy = "i.approved_on ASC NULLS LAST, i.published_on ASC, i.id"
	case models.OrderLatestVoted:
		orderBy = "MAX(v.submitted_at) DESC NULLS LAST, i.approved_on DESC, i.id"
	case models.OrderMostVoted:
		orderBy = "COALESCE(SUM(v.points), 0) DESC, i.approved_on DESC, i.id"
	case models.OrderTopVotedLast3Days, models.OrderTopVotedLastWeek, models.OrderTopVotedLastMonth:
		since := arg(q.VotesSince)
		conds = append(conds, "EXISTS (SELECT 1 FROM votes w WHERE w.image_id = i.id AND w.submitted_at >= "+since+")")
		orderBy = "COALESCE(SUM(v.points) FILTER (WHERE v.submitted_at >= " + since + "), 0) DESC, i.approved_on DESC, i.id"
	default:
		return nil, 0, common.ErrFilterNotAllowed
	}

	from := " FROM images i JOIN accounts a ON a.id = i.publisher_id"
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	query := "SELECT i.id, i.title, i.description, i.image_key, i.publisher_id, a.username," +
		" i.published_on, i.approved_by, i.approved_on, COALESCE(SUM(v.points), 0)" +
		from + " LEFT JOIN votes v ON v.image_id = i.id" + where +
		" GROUP BY i.id, a.username ORDER BY " + orderBy +
		" LIMIT " + arg(q.Limit) + " OFFSET " + arg(q.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var page []*models.GalleryImage
	for rows.Next() {
		var (
			img         models.GalleryImage
			description sql.NullString
			approvedBy  sql.NullString
			approvedOn  sql.NullTime
		)
		if err := rows.Scan(&img.ID, &img.Title, &description, &img.ImageKey, &img.PublisherID, &img.PublisherUserName,
			&img.PublishedOn, &approvedBy, &approvedOn, &img.Points); err != nil {
			return nil, 0, fmt.Errorf("db error: %w", err)
		}
		img.Description = description.String
		if approvedBy.Valid {
			img.ApprovedBy = &approvedBy.String
		}
		if approvedOn.Valid {
			img.ApprovedOn = &approvedOn.Time
		}
		page = append(page, &img)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	return page, total, nil
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"profile-api/internal/domain"
)

type PostRepository interface {
	Create(ctx context.Context, post domain.Post) error
	GetByID(ctx context.Context, id string) (domain.Post, error)
	Delete(ctx context.Context, id, userID string) error
}

type PgPostRepository struct {
	pool *pgxpool.Pool
}

func NewPgPostRepository(pool *pgxpool.Pool) *PgPostRepository {
	return &PgPostRepository{pool: pool}
}

// Create inserta el post con sus imagenes en una transaccion.
func (r *PgPostRepository) Create(ctx context.Context, post domain.Post) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const insertPost = `
			INSERT INTO posts (id, user_id, title, description, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.Exec(ctx, insertPost,
			post.ID,
			post.UserID,
			post.Title,
			post.Description,
			post.CreatedAt,
		); err != nil {
			return err
		}

		if len(post.Images) == 0 {
			return nil
		}
		const insertImage = `
			INSERT INTO post_images (id, post_id, storage_key, content_type, position)
			VALUES ($1, $2, $3, $4, $5)
		`
		batch := &pgx.Batch{}
		for _, img := range post.Images {
			batch.Queue(insertImage, img.ID, post.ID, img.StorageKey, img.ContentType, img.Position)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (r *PgPostRepository) GetByID(ctx context.Context, id string) (domain.Post, error) {
	const query = `
		SELECT id, user_id, title, description, created_at
		FROM posts
		WHERE id = $1
	`
	var post domain.Post
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&post.ID,
		&post.UserID,
		&post.Title,
		&post.Description,
		&post.CreatedAt,
	)
	if err != nil {
		return domain.Post{}, err
	}

	const imagesQuery = `
		SELECT id, post_id, storage_key, content_type, position
		FROM post_images
		WHERE post_id = $1
		ORDER BY position
	`
	rows, err := r.pool.Query(ctx, imagesQuery, id)
	if err != nil {
		return domain.Post{}, err
	}
	images, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PostImage, error) {
		var img domain.PostImage
		err := row.Scan(&img.ID, &img.PostID, &img.StorageKey, &img.ContentType, &img.Position)
		return img, err
	})
	if err != nil {
		return domain.Post{}, err
	}
	post.Images = images
	return post, nil
}

// Delete borra el post solo si pertenece al usuario; caso contrario pgx.ErrNoRows.
func (r *PgPostRepository) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shikkha/internal/institution/models"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/sentinel"
)

// PostgresStore persists institution profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `wallet, name, website, logo_url, registered_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO institutions (`+profileColumns+`)
		VALUES (lower($1), $2, $3, $4, $5, $6)
		ON CONFLICT (wallet) DO UPDATE SET
			name = EXCLUDED.name,
			website = EXCLUDED.website,
			logo_url = EXCLUDED.logo_url,
			updated_at = EXCLUDED.updated_at
		RETURNING `+profileColumns,
		p.Wallet.String(), p.Name, p.Website, p.LogoURL, p.RegisteredAt, p.UpdatedAt,
	)
	saved, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("save institution: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) FindByWallet(ctx context.Context, wallet id.Address) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM institutions WHERE wallet = lower($1)`, wallet.String())
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find institution: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*models.Profile, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM institutions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count institutions: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+profileColumns+` FROM institutions
		ORDER BY name, wallet
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list institutions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Profile, 0, limit)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan institution: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate institutions: %w", err)
	}
	return out, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*models.Profile, error) {
	var p models.Profile
	var wallet string
	if err := row.Scan(&wallet, &p.Name, &p.Website, &p.LogoURL, &p.RegisteredAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Wallet = id.Address(wallet)
	p.RegisteredAt = p.RegisteredAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"shikkha/internal/index/models"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/sentinel"
	txcontext "shikkha/pkg/platform/tx"
)

// PostgresStore persists the index in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db)
}

const entryColumns = `certificate_id, issuer, student_name, course, institution, duration, grade,
	credential_type, issued_at, claimed_status, document_locator, orphaned, updated_at`

func (s *PostgresStore) Upsert(ctx context.Context, e *models.Entry) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO certificate_index (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (certificate_id) DO UPDATE SET
			issuer = EXCLUDED.issuer,
			student_name = EXCLUDED.student_name,
			course = EXCLUDED.course,
			institution = EXCLUDED.institution,
			duration = EXCLUDED.duration,
			grade = EXCLUDED.grade,
			credential_type = EXCLUDED.credential_type,
			issued_at = EXCLUDED.issued_at,
			claimed_status = EXCLUDED.claimed_status,
			document_locator = EXCLUDED.document_locator,
			orphaned = EXCLUDED.orphaned,
			updated_at = EXCLUDED.updated_at
	`,
		e.CertificateID.String(),
		e.Issuer.String(),
		e.Fields.StudentName,
		e.Fields.Course,
		e.Fields.Institution,
		e.Fields.Duration,
		e.Fields.Grade,
		e.Fields.CredentialType,
		e.IssuedAt,
		string(e.ClaimedStatus),
		e.DocumentLocator.String(),
		e.Orphaned,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert index entry: %w", err)
	}
	return nil
}

// Project merges in a single statement so a concurrent Upsert carrying the
// document locator is never lost.
func (s *PostgresStore) Project(ctx context.Context, e *models.Entry) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO certificate_index (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12)
		ON CONFLICT (certificate_id) DO UPDATE SET
			issuer = COALESCE(NULLIF(certificate_index.issuer, ''), EXCLUDED.issuer),
			student_name = EXCLUDED.student_name,
			course = EXCLUDED.course,
			institution = EXCLUDED.institution,
			duration = EXCLUDED.duration,
			grade = EXCLUDED.grade,
			credential_type = EXCLUDED.credential_type,
			issued_at = EXCLUDED.issued_at,
			claimed_status = CASE WHEN certificate_index.claimed_status = 'revoked'
				THEN 'revoked' ELSE EXCLUDED.claimed_status END,
			document_locator = COALESCE(NULLIF(certificate_index.document_locator, ''), EXCLUDED.document_locator),
			orphaned = FALSE,
			updated_at = EXCLUDED.updated_at
		WHERE (certificate_index.student_name, certificate_index.course, certificate_index.institution,
				certificate_index.duration, certificate_index.grade, certificate_index.credential_type,
				certificate_index.issued_at)
			IS DISTINCT FROM (EXCLUDED.student_name, EXCLUDED.course, EXCLUDED.institution,
				EXCLUDED.duration, EXCLUDED.grade, EXCLUDED.credential_type, EXCLUDED.issued_at)
			OR certificate_index.orphaned
			OR (certificate_index.issuer = '' AND EXCLUDED.issuer <> '')
			OR (certificate_index.document_locator = '' AND EXCLUDED.document_locator <> '')
			OR (certificate_index.claimed_status <> 'revoked' AND certificate_index.claimed_status <> EXCLUDED.claimed_status)
	`,
		e.CertificateID.String(),
		e.Issuer.String(),
		e.Fields.StudentName,
		e.Fields.Course,
		e.Fields.Institution,
		e.Fields.Duration,
		e.Fields.Grade,
		e.Fields.CredentialType,
		e.IssuedAt,
		string(e.ClaimedStatus),
		e.DocumentLocator.String(),
		e.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("project index entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("project index entry: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) MarkRevoked(ctx context.Context, cid id.CertificateID, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE certificate_index SET claimed_status = 'revoked', updated_at = $2
		WHERE certificate_id = $1
	`, cid.String(), at)
	if err != nil {
		return fmt.Errorf("mark index entry revoked: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) SetOrphaned(ctx context.Context, cid id.CertificateID, orphaned bool, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE certificate_index SET orphaned = $2, updated_at = $3
		WHERE certificate_id = $1
	`, cid.String(), orphaned, at)
	if err != nil {
		return fmt.Errorf("flag index entry: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) FindByID(ctx context.Context, cid id.CertificateID) (*models.Entry, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM certificate_index WHERE certificate_id = $1`, cid.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find index entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) FindMany(ctx context.Context, ids []id.CertificateID) (map[id.CertificateID]*models.Entry, error) {
	out := make(map[id.CertificateID]*models.Entry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, cid := range ids {
		keys[i] = cid.String()
	}
	entries, err := s.query(ctx,
		`SELECT `+entryColumns+` FROM certificate_index WHERE certificate_id = ANY($1::text[])`, pq.Array(keys))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[e.CertificateID] = e
	}
	return out, nil
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuer id.Address, page models.Page) ([]*models.Entry, int, error) {
	var total int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM certificate_index WHERE issuer = $1`, issuer.String()).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count index entries: %w", err)
	}
	entries, err := s.query(ctx, `
		SELECT `+entryColumns+` FROM certificate_index
		WHERE issuer = $1
		ORDER BY issued_at DESC, certificate_id COLLATE "C"
		LIMIT $2 OFFSET $3
	`, issuer.String(), page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	if entries == nil {
		entries = []*models.Entry{}
	}
	return entries, total, nil
}

func (s *PostgresStore) ScanAfter(ctx context.Context, after id.CertificateID, limit int) ([]*models.Entry, error) {
	return s.query(ctx, `
		SELECT `+entryColumns+` FROM certificate_index
		WHERE certificate_id COLLATE "C" > $1
		ORDER BY certificate_id COLLATE "C"
		LIMIT $2
	`, after.String(), limit)
}

func (s *PostgresStore) Cursor(ctx context.Context, name string) (uint64, error) {
	var height int64
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT height FROM reconcile_cursors WHERE name = $1`, name).Scan(&height)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cursor %s: %w", name, err)
	}
	return uint64(height), nil
}

func (s *PostgresStore) SaveCursor(ctx context.Context, name string, height uint64) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO reconcile_cursors (name, height, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET height = EXCLUDED.height, updated_at = EXCLUDED.updated_at
	`, name, int64(height))
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query index entries: %w", err)
	}
	defer rows.Close()

	var out []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index entries: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		e       models.Entry
		rawID   string
		issuer  string
		status  string
		locator string
	)
	err := row.Scan(
		&rawID,
		&issuer,
		&e.Fields.StudentName,
		&e.Fields.Course,
		&e.Fields.Institution,
		&e.Fields.Duration,
		&e.Fields.Grade,
		&e.Fields.CredentialType,
		&e.IssuedAt,
		&status,
		&locator,
		&e.Orphaned,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cid, err := id.ParseCertificateID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored certificate id %q: %w", rawID, err)
	}
	e.CertificateID = cid
	e.Issuer = id.Address(issuer)
	e.ClaimedStatus = models.ClaimedStatus(status)
	e.DocumentLocator = id.DocumentLocator(locator)
	e.IssuedAt = e.IssuedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

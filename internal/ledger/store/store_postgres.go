package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/sentinel"
	txcontext "shikkha/pkg/platform/tx"
)

// PostgresStore persists the ledger in PostgreSQL. Writers serialize on the
// single ledger_head row, which also carries the committed height.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db)
}

func (s *PostgresStore) Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	var height int64
	err = sqlTx.QueryRowContext(ctx, `SELECT height FROM ledger_head WHERE id = 1 FOR UPDATE`).Scan(&height)
	if err != nil {
		return fmt.Errorf("lock ledger head: %w", err)
	}

	txCtx := txcontext.WithTx(ctx, sqlTx)
	if err := fn(txCtx, &postgresTx{store: s, height: uint64(height)}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

const recordColumns = `certificate_id, student_name, course, institution, duration, grade,
	credential_type, issuer, sequence, issued_at, status, revoked_at`

func (s *PostgresStore) Find(ctx context.Context, cid id.CertificateID) (*certificate.Record, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM ledger_records WHERE certificate_id = $1`, cid.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ledger record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindMany(ctx context.Context, ids []id.CertificateID) (map[id.CertificateID]*certificate.Record, error) {
	out := make(map[id.CertificateID]*certificate.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, cid := range ids {
		keys[i] = cid.String()
	}

	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+recordColumns+` FROM ledger_records WHERE certificate_id = ANY($1::text[])`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("find ledger records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger record: %w", err)
		}
		out[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Height(ctx context.Context) (uint64, error) {
	var height int64
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT height FROM ledger_head WHERE id = 1`).Scan(&height); err != nil {
		return 0, fmt.Errorf("read ledger height: %w", err)
	}
	return uint64(height), nil
}

func (s *PostgresStore) ReceiptsAfter(ctx context.Context, after uint64, limit int) ([]certificate.Receipt, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT height, tx_id, caller, committed_at, effects
		FROM ledger_receipts
		WHERE height > $1
		ORDER BY height
		LIMIT $2
	`, int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	var out []certificate.Receipt
	for rows.Next() {
		var (
			height    int64
			txID      uuid.UUID
			caller    string
			committed time.Time
			effects   []byte
		)
		if err := rows.Scan(&height, &txID, &caller, &committed, &effects); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipt := certificate.Receipt{
			TxID:      id.TxID(txID),
			Height:    uint64(height),
			Timestamp: committed.UTC(),
			Caller:    id.Address(caller),
		}
		if err := json.Unmarshal(effects, &receipt.Effects); err != nil {
			return nil, fmt.Errorf("decode receipt %d effects: %w", height, err)
		}
		out = append(out, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) InitAdmin(ctx context.Context, admin id.Address) (id.Address, error) {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO ledger_meta (id, admin) VALUES (1, $1)
		ON CONFLICT (id) DO NOTHING
	`, admin.String())
	if err != nil {
		return "", fmt.Errorf("init ledger admin: %w", err)
	}
	return s.Admin(ctx)
}

func (s *PostgresStore) Admin(ctx context.Context) (id.Address, error) {
	var admin string
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT admin FROM ledger_meta WHERE id = 1`).Scan(&admin)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read ledger admin: %w", err)
	}
	return id.Address(admin), nil
}

// postgresTx runs its statements on the *sql.Tx carried in ctx by Transact.
type postgresTx struct {
	store  *PostgresStore
	height uint64
}

func (t *postgresTx) Height(context.Context) (uint64, error) {
	return t.height, nil
}

func (t *postgresTx) Find(ctx context.Context, cid id.CertificateID) (*certificate.Record, error) {
	return t.store.Find(ctx, cid)
}

func (t *postgresTx) Insert(ctx context.Context, rec *certificate.Record) error {
	_, err := t.store.execer(ctx).ExecContext(ctx, `
		INSERT INTO ledger_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rec.ID.String(),
		rec.Fields.StudentName,
		rec.Fields.Course,
		rec.Fields.Institution,
		rec.Fields.Duration,
		rec.Fields.Grade,
		rec.Fields.CredentialType,
		rec.Issuer.String(),
		int64(rec.Sequence),
		rec.IssuedAt,
		string(rec.Status),
		rec.RevokedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("certificate %s: %w", rec.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert ledger record: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateStatus(ctx context.Context, cid id.CertificateID, status certificate.Status, at time.Time) error {
	var revokedAt *time.Time
	if status == certificate.StatusRevoked {
		revokedAt = &at
	}
	res, err := t.store.execer(ctx).ExecContext(ctx, `
		UPDATE ledger_records SET status = $2, revoked_at = $3 WHERE certificate_id = $1
	`, cid.String(), string(status), revokedAt)
	if err != nil {
		return fmt.Errorf("update ledger record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ledger record: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *postgresTx) AppendReceipt(ctx context.Context, receipt *certificate.Receipt) error {
	if receipt.Height != t.height+1 {
		return fmt.Errorf("receipt height %d does not follow %d: %w", receipt.Height, t.height, sentinel.ErrInvalidState)
	}
	effects, err := json.Marshal(receipt.Effects)
	if err != nil {
		return fmt.Errorf("encode receipt effects: %w", err)
	}

	exec := t.store.execer(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO ledger_receipts (height, tx_id, caller, committed_at, effects)
		VALUES ($1, $2, $3, $4, $5)
	`, int64(receipt.Height), uuid.UUID(receipt.TxID), receipt.Caller.String(), receipt.Timestamp, effects)
	if err != nil {
		return fmt.Errorf("append receipt: %w", err)
	}
	if _, err := exec.ExecContext(ctx, `UPDATE ledger_head SET height = $1 WHERE id = 1`, int64(receipt.Height)); err != nil {
		return fmt.Errorf("advance ledger head: %w", err)
	}
	t.height = receipt.Height
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*certificate.Record, error) {
	var (
		rawID     string
		issuer    string
		sequence  int64
		status    string
		issuedAt  time.Time
		revokedAt sql.NullTime
		rec       certificate.Record
	)
	err := row.Scan(
		&rawID,
		&rec.Fields.StudentName,
		&rec.Fields.Course,
		&rec.Fields.Institution,
		&rec.Fields.Duration,
		&rec.Fields.Grade,
		&rec.Fields.CredentialType,
		&issuer,
		&sequence,
		&issuedAt,
		&status,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}
	cid, err := id.ParseCertificateID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored certificate id %q: %w: %w", rawID, sentinel.ErrCorrupt, err)
	}
	if !certificate.Status(status).IsValid() {
		return nil, fmt.Errorf("certificate %s has status %q: %w", rawID, status, sentinel.ErrCorrupt)
	}
	rec.ID = cid
	rec.Issuer = id.Address(issuer)
	rec.Sequence = uint64(sequence)
	rec.IssuedAt = issuedAt.UTC()
	rec.Status = certificate.Status(status)
	if revokedAt.Valid {
		at := revokedAt.Time.UTC()
		rec.RevokedAt = &at
	}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

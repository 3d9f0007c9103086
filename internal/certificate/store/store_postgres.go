package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"certify/internal/certificate/models"
	id "certify/pkg/domain"
	"certify/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists records in the certificates table. The UNIQUE
// constraint on certificate_number makes Insert atomic under concurrency.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `id, certificate_number, student_name, student_id, course_id, course_title, issued_at`

func (s *PostgresStore) Insert(ctx context.Context, record *models.CertificateRecord) error {
	if record.ID.IsNil() {
		record.ID = id.NewCertificateID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO certificates (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID.String(),
		string(record.CertificateNumber),
		record.StudentName,
		record.StudentID,
		record.CourseID,
		record.CourseTitle,
		record.IssuedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			if pqErr.Constraint == "certificates_certificate_number_key" {
				return ErrDuplicateNumber
			}
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByInternalID(ctx context.Context, internalID models.InternalID) (*models.CertificateRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM certificates WHERE id = $1`, internalID.String())
	return scanOne(row)
}

// FindByNumber matches exactly; TEXT equality in Postgres is case-sensitive.
func (s *PostgresStore) FindByNumber(ctx context.Context, number models.CertificateNumber) (*models.CertificateRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM certificates WHERE certificate_number = $1`, string(number))
	return scanOne(row)
}

// ListAll reads inside a read-only REPEATABLE READ transaction so the result
// reflects one snapshot even while issuance continues.
func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.CertificateRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin list: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM certificates
		ORDER BY issued_at DESC, certificate_number DESC`)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var out []*models.CertificateRecord
	for rows.Next() {
		record, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return out, tx.Commit()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM certificates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*models.CertificateRecord, error) {
	record, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return record, err
}

func scan(row scanner) (*models.CertificateRecord, error) {
	var (
		record    models.CertificateRecord
		rawID     string
		rawNumber string
	)
	err := row.Scan(&rawID, &rawNumber, &record.StudentName, &record.StudentID,
		&record.CourseID, &record.CourseTitle, &record.IssuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan certificate: %w", err)
	}
	parsed, err := id.ParseCertificateID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan certificate id: %w", err)
	}
	record.ID = parsed
	record.CertificateNumber = models.CertificateNumber(rawNumber)
	record.IssuedAt = record.IssuedAt.UTC()
	return &record, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
)

const certificateColumns = `id, user_id, module_id, code, module_title, course_title, holder_name, file_path, issued_at`

// CertificateRepository provides database access for issued certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository creates a new instance of CertificateRepository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create inserts a certificate. A unique index on (user_id, module_id)
// backstops the idempotency check in the service.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO certificates (id, user_id, module_id, code, module_title, course_title, holder_name, file_path, issued_at) VALUES (:id, :user_id, :module_id, :code, :module_title, :course_title, :holder_name, :file_path, :issued_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// FindByUserModule returns the certificate for a (user, module) pair.
func (r *CertificateRepository) FindByUserModule(ctx context.Context, userID, moduleID string) (*models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE user_id = $1 AND module_id = $2 LIMIT 1`, certificateColumns)
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, userID, moduleID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate by user module: %w", err)
	}
	return &cert, nil
}

// FindByID returns a certificate by its primary key.
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE id = $1 LIMIT 1`, certificateColumns)
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate by id: %w", err)
	}
	return &cert, nil
}

// FindByCode looks up a certificate by its public verification code,
// case-insensitively.
func (r *CertificateRepository) FindByCode(ctx context.Context, code string) (*models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE UPPER(code) = UPPER($1) LIMIT 1`, certificateColumns)
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate by code: %w", err)
	}
	return &cert, nil
}

// ListByUser returns a user's certificates, newest first.
func (r *CertificateRepository) ListByUser(ctx context.Context, userID string) ([]models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE user_id = $1 ORDER BY issued_at DESC`, certificateColumns)
	var certs []models.Certificate
	if err := r.db.SelectContext(ctx, &certs, query, userID); err != nil {
		return nil, fmt.Errorf("list certificates by user: %w", err)
	}
	return certs, nil
}

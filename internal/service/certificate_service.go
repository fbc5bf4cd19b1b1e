package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
	"github.com/build-biblical-leaders/bbl-api/pkg/export"
	"github.com/build-biblical-leaders/bbl-api/pkg/storage"
)

type certificateRepository interface {
	Create(ctx context.Context, cert *models.Certificate) error
	FindByID(ctx context.Context, id string) (*models.Certificate, error)
	FindByUserModule(ctx context.Context, userID, moduleID string) (*models.Certificate, error)
	FindByCode(ctx context.Context, code string) (*models.Certificate, error)
	ListByUser(ctx context.Context, userID string) ([]models.Certificate, error)
}

type eligibilityChecker interface {
	GetModuleEligibility(ctx context.Context, studentID, moduleID string) (*models.ModuleEligibility, error)
}

type certificateCurriculumReader interface {
	GetModule(ctx context.Context, id string) (*models.CourseModule, error)
	GetCourse(ctx context.Context, id string) (*models.Course, error)
}

type certificateUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CertificateDownload pairs a signed download token with its expiry.
type CertificateDownload struct {
	Certificate *models.Certificate `json:"certificate"`
	DownloadURL string              `json:"download_url"`
	ExpiresAt   time.Time           `json:"expires_at"`
}

// CertificateService issues, stores, and verifies completion certificates.
// Issuance is idempotent per (user, module).
type CertificateService struct {
	repo       certificateRepository
	progress   eligibilityChecker
	curriculum certificateCurriculumReader
	users      certificateUserReader
	renderer   *export.PDFExporter
	files      *storage.LocalStorage
	signer     *storage.SignedURLSigner
	issuerName string
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewCertificateService constructs a CertificateService instance.
func NewCertificateService(repo certificateRepository, progress eligibilityChecker, curriculum certificateCurriculumReader, users certificateUserReader, renderer *export.PDFExporter, files *storage.LocalStorage, signer *storage.SignedURLSigner, issuerName string, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if renderer == nil {
		renderer = export.NewPDFExporter()
	}
	return &CertificateService{
		repo:       repo,
		progress:   progress,
		curriculum: curriculum,
		users:      users,
		renderer:   renderer,
		files:      files,
		signer:     signer,
		issuerName: issuerName,
		validator:  validate,
		logger:     logger,
	}
}

// IssueCertificate issues the module certificate for a student. Repeat calls
// return the already issued certificate unchanged.
func (s *CertificateService) IssueCertificate(ctx context.Context, studentID string, req models.IssueCertificateRequest) (*CertificateDownload, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid certificate payload")
	}

	if existing, err := s.repo.FindByUserModule(ctx, studentID, req.ModuleID); err == nil {
		return s.withDownload(existing)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing certificate")
	}

	elig, err := s.progress.GetModuleEligibility(ctx, studentID, req.ModuleID)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "module requirements are not met")
	}

	module, err := s.curriculum.GetModule(ctx, req.ModuleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	courseTitle := ""
	if course, err := s.curriculum.GetCourse(ctx, module.CourseID); err == nil {
		courseTitle = course.Title
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	code, err := newCertificateCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create certificate code")
	}

	cert := &models.Certificate{
		UserID:      studentID,
		ModuleID:    module.ID,
		Code:        code,
		ModuleTitle: module.Title,
		CourseTitle: courseTitle,
		HolderName:  student.FullName,
		IssuedAt:    time.Now().UTC(),
	}

	if s.files != nil {
		pdf, err := s.renderer.RenderCertificate(export.CertificateData{
			RecipientName: cert.HolderName,
			ModuleTitle:   cert.ModuleTitle,
			CourseTitle:   cert.CourseTitle,
			Code:          cert.Code,
			IssuedAt:      cert.IssuedAt,
			IssuerName:    s.issuerName,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
		}
		relPath := fmt.Sprintf("%s/%s.pdf", studentID, cert.Code)
		stored, err := s.files.Save(relPath, pdf)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
		}
		cert.FilePath = stored
	}

	if err := s.repo.Create(ctx, cert); err != nil {
		// Concurrent issuance loses to the unique index; surface the winner.
		if existing, findErr := s.repo.FindByUserModule(ctx, studentID, req.ModuleID); findErr == nil {
			return s.withDownload(existing)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist certificate")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &studentID,
		Action:     models.AuditActionCertIssue,
		Resource:   "certificate",
		ResourceID: &cert.ID,
		NewValues:  []byte(fmt.Sprintf(`{"module_id":%q,"code":%q}`, cert.ModuleID, cert.Code)),
	}); err != nil {
		s.logger.Warn("failed to record certificate audit log", zap.Error(err))
	}

	return s.withDownload(cert)
}

// GetCertificate returns an issued certificate with a fresh download token.
func (s *CertificateService) GetCertificate(ctx context.Context, userID, moduleID string) (*CertificateDownload, error) {
	cert, err := s.repo.FindByUserModule(ctx, userID, moduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return s.withDownload(cert)
}

// ListCertificates returns a user's certificates, newest first.
func (s *CertificateService) ListCertificates(ctx context.Context, userID string) ([]models.Certificate, error) {
	certs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}
	return certs, nil
}

// VerifyCertificate performs the public, case-insensitive code lookup. An
// unknown code is a valid=false result, not an error.
func (s *CertificateService) VerifyCertificate(ctx context.Context, code string) (*models.CertificateVerification, error) {
	cert, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.CertificateVerification{Valid: false, Code: code}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up certificate")
	}
	return &models.CertificateVerification{
		Valid:       true,
		Code:        cert.Code,
		HolderName:  cert.HolderName,
		ModuleTitle: cert.ModuleTitle,
		CourseTitle: cert.CourseTitle,
		IssuedAt:    cert.IssuedAt,
	}, nil
}

// ResolveDownload validates a signed token against the certificate it was
// issued for and returns the stored file path.
func (s *CertificateService) ResolveDownload(ctx context.Context, token string) (string, error) {
	if s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "certificate downloads are not configured")
	}
	recordID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "invalid download token")
	}

	cert, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrInvalidToken, "certificate no longer exists")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if cert.FilePath != relPath {
		return "", appErrors.Clone(appErrors.ErrInvalidToken, "token does not match certificate")
	}

	return s.files.Path(cert.FilePath), nil
}

func (s *CertificateService) withDownload(cert *models.Certificate) (*CertificateDownload, error) {
	result := &CertificateDownload{Certificate: cert}
	if s.signer != nil && cert.FilePath != "" {
		token, expiresAt, err := s.signer.Generate(cert.ID, cert.FilePath)
		if err != nil {
			s.logger.Warn("failed to sign certificate download", zap.Error(err))
			return result, nil
		}
		result.DownloadURL = token
		result.ExpiresAt = expiresAt
	}
	return result, nil
}

const certificateCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newCertificateCode returns an 8 character uppercase code without look-alike
// characters.
func newCertificateCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = certificateCodeAlphabet[int(buf[i])%len(certificateCodeAlphabet)]
	}
	return string(buf), nil
}

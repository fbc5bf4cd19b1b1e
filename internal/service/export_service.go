package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
	"github.com/build-biblical-leaders/bbl-api/pkg/export"
	"github.com/build-biblical-leaders/bbl-api/pkg/storage"
)

// ExportKind names the downloadable datasets.
type ExportKind string

const (
	ExportRoster   ExportKind = "roster"
	ExportAttempts ExportKind = "attempts"
	ExportProgress ExportKind = "progress"
)

// ExportFormat is the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportRequest describes one export. SubjectID is the organization or
// mentor for rosters and the student for attempt logs and progress reports.
type ExportRequest struct {
	Kind      ExportKind   `json:"kind" validate:"required"`
	Format    ExportFormat `json:"format" validate:"required"`
	SubjectID string       `json:"subject_id" validate:"required"`
}

type exportUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type exportAttemptReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.StudentAttempt, error)
}

type summaryProvider interface {
	GetStudentSummary(ctx context.Context, studentID string) (*models.StudentSummary, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string       `json:"relative_path"`
	Token        string       `json:"token"`
	URL          string       `json:"url"`
	Format       ExportFormat `json:"format"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// ExportService builds roster, attempt log, and progress datasets and
// persists the rendered files behind signed download tokens.
type ExportService struct {
	users    exportUserReader
	attempts exportAttemptReader
	progress summaryProvider
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(users exportUserReader, attempts exportAttemptReader, progress summaryProvider, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		users:    users,
		attempts: attempts,
		progress: progress,
		storage:  files,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the dataset, renders it, and stores the file.
func (s *ExportService) Generate(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	dataset, title, err := s.buildDataset(ctx, req)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch req.Format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", req.Format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := s.buildFilename(req)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(req.SubjectID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export download")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       req.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (subjectID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL
// when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildDataset(ctx context.Context, req ExportRequest) (export.Dataset, string, error) {
	switch req.Kind {
	case ExportRoster:
		return s.buildRosterDataset(ctx, req.SubjectID)
	case ExportAttempts:
		return s.buildAttemptsDataset(ctx, req.SubjectID)
	case ExportProgress:
		return s.buildProgressDataset(ctx, req.SubjectID)
	default:
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export kind %s", req.Kind))
	}
}

func (s *ExportService) buildRosterDataset(ctx context.Context, subjectID string) (export.Dataset, string, error) {
	subject, err := s.users.FindByID(ctx, subjectID)
	if err != nil {
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrNotFound, "roster subject not found")
	}

	filter := models.UserFilter{PageSize: 100}
	switch subject.Role {
	case models.RoleOrganization:
		filter.OrganizationID = subject.ID
	case models.RoleMentor:
		filter.MentorID = subject.ID
	default:
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrValidation, "roster subject must be an organization or mentor")
	}

	members, _, err := s.users.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("list roster members: %w", err)
	}

	rows := make([]map[string]string, 0, len(members))
	for _, member := range members {
		rows = append(rows, map[string]string{
			"Name":      member.FullName,
			"Email":     member.Email,
			"Role":      string(member.Role),
			"Verified":  fmt.Sprintf("%t", member.Verified),
			"Joined At": member.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Name", "Email", "Role", "Verified", "Joined At"},
		Rows:    rows,
	}
	return dataset, fmt.Sprintf("Member Roster %s", subject.FullName), nil
}

func (s *ExportService) buildAttemptsDataset(ctx context.Context, studentID string) (export.Dataset, string, error) {
	attempts, err := s.attempts.ListByStudent(ctx, studentID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("list student attempts: %w", err)
	}

	rows := make([]map[string]string, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, map[string]string{
			"Lesson ID":    a.LessonID,
			"Quiz ID":      a.QuizID,
			"Selected":     a.SelectedOptionID,
			"Correct":      fmt.Sprintf("%t", a.Correct),
			"Submitted At": a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Lesson ID", "Quiz ID", "Selected", "Correct", "Submitted At"},
		Rows:    rows,
	}
	return dataset, "Attempt Log", nil
}

func (s *ExportService) buildProgressDataset(ctx context.Context, studentID string) (export.Dataset, string, error) {
	summary, err := s.progress.GetStudentSummary(ctx, studentID)
	if err != nil {
		return export.Dataset{}, "", err
	}

	rows := make([]map[string]string, 0, len(summary.Lessons))
	for _, lesson := range summary.Lessons {
		rows = append(rows, map[string]string{
			"Lesson":    lesson.LessonTitle,
			"Quizzes":   fmt.Sprintf("%d", lesson.QuizCount),
			"Attempted": fmt.Sprintf("%d", lesson.Attempted),
			"Correct":   fmt.Sprintf("%d", lesson.CorrectLatest),
			"Score (%)": fmt.Sprintf("%.2f", lesson.ScorePercent),
			"Completed": fmt.Sprintf("%t", lesson.Completed),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Lesson", "Quizzes", "Attempted", "Correct", "Score (%)", "Completed"},
		Rows:    rows,
	}
	return dataset, "Progress Report", nil
}

func (s *ExportService) buildFilename(req ExportRequest) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", req.Kind, sanitizeFilename(req.SubjectID), timestamp, req.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
	"github.com/build-biblical-leaders/bbl-api/pkg/storage"
)

type mockAttemptReader struct {
	attempts []models.StudentAttempt
}

func (m *mockAttemptReader) ListByStudent(ctx context.Context, studentID string) ([]models.StudentAttempt, error) {
	return m.attempts, nil
}

type mockSummaryProvider struct {
	summary *models.StudentSummary
}

func (m *mockSummaryProvider) GetStudentSummary(ctx context.Context, studentID string) (*models.StudentSummary, error) {
	if m.summary == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return m.summary, nil
}

func newTestExportService(t *testing.T, users exportUserReader, attempts exportAttemptReader, progress summaryProvider) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewExportService(users, attempts, progress, files, signer, ExportConfig{
		APIPrefix: "/api/v1",
		ResultTTL: time.Hour,
	}, zap.NewNop(), nil, nil)
	return svc, files
}

func TestExportRosterCSV(t *testing.T) {
	orgID := "org1"
	org := &models.User{ID: orgID, Email: "org@example.com", FullName: "First Church", Role: models.RoleOrganization, Active: true}
	member := &models.User{ID: "s1", Email: "student@example.com", FullName: "Student One",
		Role: models.RoleStudent, OrganizationID: &orgID, Verified: true, Active: true}
	users := newMockUserRepo(org, member)

	svc, files := newTestExportService(t, users, &mockAttemptReader{}, &mockSummaryProvider{})

	result, err := svc.Generate(context.Background(), ExportRequest{
		Kind:      ExportRoster,
		Format:    ExportFormatCSV,
		SubjectID: orgID,
	})
	require.NoError(t, err)
	assert.Contains(t, result.URL, "/api/v1/exports/")
	assert.True(t, strings.HasSuffix(result.RelativePath, ".csv"))

	f, err := files.Open(result.RelativePath)
	require.NoError(t, err)
	defer f.Close()
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Name,Email,Role,Verified,Joined At")
	assert.Contains(t, content, "student@example.com")
	assert.Contains(t, content, "STUDENT")
}

func TestExportRosterRejectsStudentSubject(t *testing.T) {
	student := &models.User{ID: "s1", Email: "student@example.com", Role: models.RoleStudent, Active: true}
	users := newMockUserRepo(student)

	svc, _ := newTestExportService(t, users, &mockAttemptReader{}, &mockSummaryProvider{})

	_, err := svc.Generate(context.Background(), ExportRequest{
		Kind:      ExportRoster,
		Format:    ExportFormatCSV,
		SubjectID: "s1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestExportAttemptsCSV(t *testing.T) {
	attempts := &mockAttemptReader{attempts: []models.StudentAttempt{
		{LessonID: "l1", QuizID: "q1", SelectedOptionID: "o2", Correct: true, CreatedAt: time.Now()},
		{LessonID: "l1", QuizID: "q2", SelectedOptionID: "o1", Correct: false, CreatedAt: time.Now()},
	}}
	svc, files := newTestExportService(t, newMockUserRepo(), attempts, &mockSummaryProvider{})

	result, err := svc.Generate(context.Background(), ExportRequest{
		Kind:      ExportAttempts,
		Format:    ExportFormatCSV,
		SubjectID: "s1",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(files.Path(result.RelativePath))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Lesson ID,Quiz ID,Selected,Correct,Submitted At")
	assert.Contains(t, content, "q1,o2,true")
	assert.Contains(t, content, "q2,o1,false")
}

func TestExportProgressPDF(t *testing.T) {
	progress := &mockSummaryProvider{summary: &models.StudentSummary{
		StudentID:        "s1",
		LessonsCompleted: 1,
		AverageScore:     75,
		Lessons: []models.LessonProgress{
			{LessonID: "l1", LessonTitle: "Moses", QuizCount: 4, Attempted: 4, CorrectLatest: 3, Completed: true, ScorePercent: 75},
		},
	}}
	svc, files := newTestExportService(t, newMockUserRepo(), &mockAttemptReader{}, progress)

	result, err := svc.Generate(context.Background(), ExportRequest{
		Kind:      ExportProgress,
		Format:    ExportFormatPDF,
		SubjectID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, ExportFormatPDF, result.Format)

	data, err := os.ReadFile(files.Path(result.RelativePath))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestExportUnknownKind(t *testing.T) {
	svc, _ := newTestExportService(t, newMockUserRepo(), &mockAttemptReader{}, &mockSummaryProvider{})

	_, err := svc.Generate(context.Background(), ExportRequest{
		Kind:      ExportKind("everything"),
		Format:    ExportFormatCSV,
		SubjectID: "s1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestExportDownloadTokenRoundTrip(t *testing.T) {
	orgID := "org1"
	org := &models.User{ID: orgID, Email: "org@example.com", FullName: "Org", Role: models.RoleOrganization, Active: true}
	svc, _ := newTestExportService(t, newMockUserRepo(org), &mockAttemptReader{}, &mockSummaryProvider{})

	result, err := svc.Generate(context.Background(), ExportRequest{
		Kind:      ExportRoster,
		Format:    ExportFormatCSV,
		SubjectID: orgID,
	})
	require.NoError(t, err)

	subject, relPath, expiresAt, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, orgID, subject)
	assert.Equal(t, result.RelativePath, relPath)
	assert.True(t, expiresAt.After(time.Now()))

	_, _, _, err = svc.ParseToken(result.Token+"tampered", false)
	require.Error(t, err)
}

func TestExportCleanupRemovesOldFiles(t *testing.T) {
	orgID := "org1"
	org := &models.User{ID: orgID, Email: "org@example.com", FullName: "Org", Role: models.RoleOrganization, Active: true}
	svc, files := newTestExportService(t, newMockUserRepo(org), &mockAttemptReader{}, &mockSummaryProvider{})

	result, err := svc.Generate(context.Background(), ExportRequest{
		Kind:      ExportRoster,
		Format:    ExportFormatCSV,
		SubjectID: orgID,
	})
	require.NoError(t, err)

	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(files.Path(result.RelativePath), stale, stale))

	removed, err := svc.Cleanup(time.Hour)
	require.NoError(t, err)
	assert.Contains(t, removed, result.RelativePath)

	_, err = svc.Open(result.RelativePath)
	require.Error(t, err)
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
)

type mockStudyRepo struct {
	aids map[string]*models.StudyAid
}

func newMockStudyRepo() *mockStudyRepo {
	return &mockStudyRepo{aids: map[string]*models.StudyAid{}}
}

func studyKey(userID, lessonID string, kind models.StudyAidKind) string {
	return userID + "/" + lessonID + "/" + string(kind)
}

func (m *mockStudyRepo) Upsert(ctx context.Context, aid *models.StudyAid) error {
	aid.UpdatedAt = time.Now().UTC()
	m.aids[studyKey(aid.UserID, aid.LessonID, aid.Kind)] = aid
	return nil
}

func (m *mockStudyRepo) Get(ctx context.Context, userID, lessonID string, kind models.StudyAidKind) (*models.StudyAid, error) {
	if aid, ok := m.aids[studyKey(userID, lessonID, kind)]; ok {
		return aid, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudyRepo) ListByUserLesson(ctx context.Context, userID, lessonID string) ([]models.StudyAid, error) {
	var out []models.StudyAid
	for _, aid := range m.aids {
		if aid.UserID == userID && aid.LessonID == lessonID {
			out = append(out, *aid)
		}
	}
	return out, nil
}

func TestSaveAidRoundTrip(t *testing.T) {
	svc := NewStudyService(newMockStudyRepo(), zap.NewNop())

	payload := []byte(`[{"verse":"Exodus 3:14","color":"yellow"}]`)
	_, err := svc.SaveAid(context.Background(), "s1", "l1", "highlights", payload)
	require.NoError(t, err)

	aid, err := svc.GetAid(context.Background(), "s1", "l1", "highlights")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(aid.Payload))
}

func TestSaveAidReplacesDocument(t *testing.T) {
	svc := NewStudyService(newMockStudyRepo(), zap.NewNop())

	_, err := svc.SaveAid(context.Background(), "s1", "l1", "notes", []byte(`{"text":"first"}`))
	require.NoError(t, err)
	_, err = svc.SaveAid(context.Background(), "s1", "l1", "notes", []byte(`{"text":"second"}`))
	require.NoError(t, err)

	aid, err := svc.GetAid(context.Background(), "s1", "l1", "notes")
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"second"}`, string(aid.Payload))
}

func TestSaveAidRejectsUnknownKind(t *testing.T) {
	svc := NewStudyService(newMockStudyRepo(), zap.NewNop())

	_, err := svc.SaveAid(context.Background(), "s1", "l1", "doodles", []byte(`[]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSaveAidRejectsInvalidJSON(t *testing.T) {
	svc := NewStudyService(newMockStudyRepo(), zap.NewNop())

	_, err := svc.SaveAid(context.Background(), "s1", "l1", "notes", []byte(`{broken`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestGetAidMissingReturnsEmptyDocument(t *testing.T) {
	svc := NewStudyService(newMockStudyRepo(), zap.NewNop())

	aid, err := svc.GetAid(context.Background(), "s1", "l1", "bookmarks")
	require.NoError(t, err)
	assert.Equal(t, models.StudyAidBookmarks, aid.Kind)
	assert.JSONEq(t, `[]`, string(aid.Payload))
}

func TestListAidsScopedToLesson(t *testing.T) {
	svc := NewStudyService(newMockStudyRepo(), zap.NewNop())

	_, err := svc.SaveAid(context.Background(), "s1", "l1", "notes", []byte(`{"text":"a"}`))
	require.NoError(t, err)
	_, err = svc.SaveAid(context.Background(), "s1", "l1", "highlights", []byte(`[]`))
	require.NoError(t, err)
	_, err = svc.SaveAid(context.Background(), "s1", "l2", "notes", []byte(`{"text":"b"}`))
	require.NoError(t, err)

	aids, err := svc.ListAids(context.Background(), "s1", "l1")
	require.NoError(t, err)
	assert.Len(t, aids, 2)
}

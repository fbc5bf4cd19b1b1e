package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
)

func certificateRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "module_id", "code", "module_title",
		"course_title", "holder_name", "file_path", "issued_at"})
}

func TestCertificateCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec("INSERT INTO certificates").WillReturnResult(sqlmock.NewResult(1, 1))

	cert := &models.Certificate{UserID: "s1", ModuleID: "mod1", Code: "ABCD2345",
		ModuleTitle: "Exodus", HolderName: "Student One"}
	require.NoError(t, repo.Create(context.Background(), cert))
	assert.NotEmpty(t, cert.ID)
	assert.False(t, cert.IssuedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateFindByCodeCaseInsensitive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE UPPER(code) = UPPER($1) LIMIT 1")).
		WithArgs("abcd2345").
		WillReturnRows(certificateRows().
			AddRow("cert1", "s1", "mod1", "ABCD2345", "Exodus", "Old Testament Leaders",
				"Student One", "s1/ABCD2345.pdf", time.Now()))

	cert, err := repo.FindByCode(context.Background(), "abcd2345")
	require.NoError(t, err)
	assert.Equal(t, "ABCD2345", cert.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE id = $1 LIMIT 1")).
		WithArgs("cert1").
		WillReturnRows(certificateRows().
			AddRow("cert1", "s1", "mod1", "ABCD2345", "Exodus", "Old Testament Leaders",
				"Student One", "s1/ABCD2345.pdf", time.Now()))

	cert, err := repo.FindByID(context.Background(), "cert1")
	require.NoError(t, err)
	assert.Equal(t, "s1/ABCD2345.pdf", cert.FilePath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateFindByUserModuleMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND module_id = $2 LIMIT 1")).
		WithArgs("s1", "mod1").
		WillReturnRows(certificateRows())

	_, err := repo.FindByUserModule(context.Background(), "s1", "mod1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateListByUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 ORDER BY issued_at DESC")).
		WithArgs("s1").
		WillReturnRows(certificateRows().
			AddRow("cert2", "s1", "mod2", "EFGH6789", "Kings", "Old Testament Leaders",
				"Student One", "s1/EFGH6789.pdf", now).
			AddRow("cert1", "s1", "mod1", "ABCD2345", "Exodus", "Old Testament Leaders",
				"Student One", "s1/ABCD2345.pdf", now.Add(-time.Hour)))

	certs, err := repo.ListByUser(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.Equal(t, "EFGH6789", certs[0].Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

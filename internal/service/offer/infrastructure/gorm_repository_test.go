package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"flashpromo/internal/service/offer/domain"
)

func newMockRepo(t *testing.T) (*GormOfferRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return NewGormOfferRepository(gdb), mock
}

func sampleBatch() (*domain.Batch, []*domain.Offer) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pct := 20.0
	batch := &domain.Batch{ID: "batch-1", Token: "token-1", MerchantID: "m-1", Fingerprint: "fp", OfferIDs: []string{"o1", "o2"}, CreatedAt: now}
	offers := []*domain.Offer{
		domain.NewOffer("o1", "batch-1", "m-1", 0, domain.Draft{PermutationID: "p1", OfferType: domain.OfferTypePercentage, Title: "t", Product: "p", PercentageOff: &pct, DurationHours: 72}, now),
		domain.NewOffer("o2", "batch-1", "m-1", 1, domain.Draft{PermutationID: "p2", OfferType: domain.OfferTypePercentage, Title: "t", Product: "p", PercentageOff: &pct}, now),
	}
	return batch, offers
}

func TestGormOfferRepository_CreateBatch(t *testing.T) {
	repo, mock := newMockRepo(t)
	batch, offers := sampleBatch()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `offer_batches`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `offers`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateBatch(context.Background(), batch, offers))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOfferRepository_CreateBatchRollsBackOnOfferFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	batch, offers := sampleBatch()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `offer_batches`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `offers`").WillReturnError(&mysqldriver.MySQLError{Number: 1406, Message: "Data too long"})
	mock.ExpectRollback()

	err := repo.CreateBatch(context.Background(), batch, offers)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDuplicateToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOfferRepository_CreateBatchDuplicateToken(t *testing.T) {
	repo, mock := newMockRepo(t)
	batch, offers := sampleBatch()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `offer_batches`").WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'token-1' for key 'token'"})
	mock.ExpectRollback()

	err := repo.CreateBatch(context.Background(), batch, offers)
	assert.ErrorIs(t, err, domain.ErrDuplicateToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOfferRepository_FindBatchByToken(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT \\* FROM `offer_batches` WHERE token = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "token", "merchant_id", "fingerprint", "created_at"}).
			AddRow("batch-1", "token-1", "m-1", "fp", created))
	mock.ExpectQuery("SELECT `id` FROM `offers` WHERE batch_id = \\? ORDER BY position").
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("o1").AddRow("o2"))

	batch, err := repo.FindBatchByToken(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "batch-1", batch.ID)
	assert.Equal(t, "fp", batch.Fingerprint)
	assert.Equal(t, []string{"o1", "o2"}, batch.OfferIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOfferRepository_FindBatchByTokenNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT \\* FROM `offer_batches` WHERE token = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "token"}))

	_, err := repo.FindBatchByToken(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrBatchNotFound)
}

func TestGormOfferRepository_ListFolders(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT \\* FROM `campaign_folders` WHERE merchant_id = \\? ORDER BY name").
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "merchant_id", "name"}).
			AddRow("f1", "m-1", "Autumn").
			AddRow("f2", "m-1", "Spring"))

	folders, err := repo.ListFolders(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Folder{{ID: "f1", MerchantID: "m-1", Name: "Autumn"}, {ID: "f2", MerchantID: "m-1", Name: "Spring"}}, folders)
}

func TestFromDomainOffer_KeepsFullDraft(t *testing.T) {
	_, offers := sampleBatch()
	m, err := FromDomainOffer(offers[0])
	require.NoError(t, err)
	assert.Equal(t, "percentage", m.OfferType)
	assert.JSONEq(t, `{"permutationId":"p1","offerType":"percentage","title":"t","product":"p","label":"","durationHours":72,"percentageOff":20}`, m.Terms)
	assert.True(t, m.ExpiresAt.Valid)

	m, err = FromDomainOffer(offers[1])
	require.NoError(t, err)
	assert.False(t, m.ExpiresAt.Valid)
}

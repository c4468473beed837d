package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"delivery/internal/domain/model"
	repo "delivery/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return db, mock
}

func TestOrderGorm_CreateReturnsID(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewOrderGormRepository(db)

	mock.ExpectQuery(`INSERT INTO "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := r.Create(context.Background(), model.Order{UserID: 1, Status: model.OrderStatusPending, TotalPrice: 35})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGorm_FindByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewOrderGormRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := r.FindByID(context.Background(), 99)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGorm_UpdateStatusIsCompareAndSet(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewOrderGormRepository(db)

	// 別リクエストが先に変更していたら0件
	mock.ExpectExec(`UPDATE "orders" SET .*WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := r.UpdateStatus(context.Background(), 1, model.OrderStatusPending, model.OrderStatusConfirmed)
	assert.ErrorIs(t, err, repo.ErrConflict)

	mock.ExpectExec(`UPDATE "orders" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err = r.UpdateStatus(context.Background(), 1, model.OrderStatusPending, model.OrderStatusConfirmed)
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGorm_CreateDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewUserGormRepository(db)

	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	err := r.Create(context.Background(), &model.User{Email: "alice@example.com", PasswordHash: "x", Role: model.RoleUser})
	assert.ErrorIs(t, err, repo.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGorm_FindByEmailNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewUserGormRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	u, err := r.FindByEmail(context.Background(), "nobody@example.com")
	assert.Nil(t, u)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUserGorm_IncrementTokenVersionMissingUser(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewUserGormRepository(db)

	mock.ExpectExec(`UPDATE "users" SET "token_version"=token_version \+ \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := r.IncrementTokenVersion(context.Background(), 5)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGorm_LockAdminBootstrapTakesAdvisoryLock(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewUserGormRepository(db)

	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(adminBootstrapLockKey).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.LockAdminBootstrap(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenGorm_MarkUsedTwice(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewRefreshTokenRepository(db)

	mock.ExpectExec(`UPDATE "refresh_tokens" SET "used_at"=\$1 WHERE id = \$2 AND used_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := r.MarkUsed(context.Background(), "b1d2c3", time.Now())
	assert.ErrorIs(t, err, repo.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_CommitsOrderAndItems(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTxManagerGorm(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "order_items"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10).AddRow(11))
	mock.ExpectCommit()

	items := []model.OrderItem{
		{ProductID: 1, ProductNameSnapshot: "Pizza", UnitPriceSnapshot: 10, Quantity: 3},
		{ProductID: 2, ProductNameSnapshot: "Cola", UnitPriceSnapshot: 5, Quantity: 1},
	}
	err := tm.WithinTx(context.Background(), func(r repo.TxRepos) error {
		id, err := r.Orders().Create(context.Background(), model.Order{UserID: 1, Status: model.OrderStatusPending, TotalPrice: 35})
		if err != nil {
			return err
		}
		return r.OrderItems().CreateBulk(context.Background(), id, items)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), items[0].OrderID)
	assert.Equal(t, int64(1), items[1].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_RollsBackWhenItemInsertFails(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTxManagerGorm(db)

	boom := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "order_items"`).
		WillReturnError(boom)
	mock.ExpectRollback()

	err := tm.WithinTx(context.Background(), func(r repo.TxRepos) error {
		id, err := r.Orders().Create(context.Background(), model.Order{UserID: 1, Status: model.OrderStatusPending})
		if err != nil {
			return err
		}
		return r.OrderItems().CreateBulk(context.Background(), id, []model.OrderItem{
			{ProductID: 1, ProductNameSnapshot: "Pizza", UnitPriceSnapshot: 10, Quantity: 1},
		})
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductGorm_FindByIDsEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewProductGormRepository(db)

	ps, err := r.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ps)
	// クエリは発行しない
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGorm_FindByIDForUpdateLocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewOrderGormRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "total_price"}).AddRow(3, 1, "PENDING", 35))

	o, err := r.FindByIDForUpdate(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, int64(35), o.TotalPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
)

func newMockCartReadModel(t *testing.T) (*CartReadModel, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCartReadModel(db), mock
}

func liveCart(t *testing.T) *entity.CartAggregate {
	t.Helper()
	cart := entity.NewCartAggregate("cart-1")
	require.NoError(t, cart.Create("user-1", time.Now()))
	require.NoError(t, cart.AddItem("sku-1", "Widget", 9.99, 2, time.Now()))
	return cart
}

// TestCartReadModel_UpdateProjection_FallsBackToCreateWhenNoRowsAffected
// pins §4.3: a zero-row UPDATE (no row yet, or a stale write beaten by a
// newer version) is followed by CreateProjection's insert-or-ignore, which
// adds the row when it is missing and leaves a newer row untouched.
func TestCartReadModel_UpdateProjection_FallsBackToCreateWhenNoRowsAffected(t *testing.T) {
	rm, mock := newMockCartReadModel(t)
	cart := liveCart(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE cart_projections")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cart_projections")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := rm.UpdateProjection(context.Background(), cart)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCartReadModel_UpdateProjection_SkipsFallbackOnRowsAffected is the
// ordinary case: the UPDATE lands and no fallback insert is issued.
func TestCartReadModel_UpdateProjection_SkipsFallbackOnRowsAffected(t *testing.T) {
	rm, mock := newMockCartReadModel(t)
	cart := liveCart(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE cart_projections")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := rm.UpdateProjection(context.Background(), cart)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCartReadModel_GetCart_NotFound translates sql.ErrNoRows into the
// repository-level sentinel the use case layer checks for.
func TestCartReadModel_GetCart_NotFound(t *testing.T) {
	rm, mock := newMockCartReadModel(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT cart_id, user_id, status, items, total_amount, item_count, version, created_at, last_activity, updated_at")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := rm.GetCart(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCartReadModel_GetCart_DecodesItems pins the JSON round-trip of the
// items column.
func TestCartReadModel_GetCart_DecodesItems(t *testing.T) {
	rm, mock := newMockCartReadModel(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"cart_id", "user_id", "status", "items", "total_amount", "item_count", "version", "created_at", "last_activity", "updated_at"}).
		AddRow("cart-1", "user-1", "PENDING", []byte(`[{"product_id":"sku-1","product_name":"Widget","price":9.99,"quantity":2,"total_price":19.98}]`), 19.98, 2, 2, now, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT cart_id, user_id, status, items, total_amount, item_count, version, created_at, last_activity, updated_at")).
		WithArgs("cart-1").
		WillReturnRows(rows)

	proj, err := rm.GetCart(context.Background(), "cart-1")
	require.NoError(t, err)
	require.Len(t, proj.Items, 1)
	assert.Equal(t, "sku-1", proj.Items[0].ProductID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/qbridge/backend/internal/domain/mapping"
	syncdomain "github.com/qbridge/backend/internal/domain/sync"
)

// newMockIdentityMappingRepository creates a GormIdentityMappingRepository with a mocked SQL connection
func newMockIdentityMappingRepository(t *testing.T) (*GormIdentityMappingRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormIdentityMappingRepository(gormDB), mock, mockDB
}

func TestGormIdentityMappingRepository_Resolve(t *testing.T) {
	t.Run("finds existing mapping", func(t *testing.T) {
		repo, mock, mockDB := newMockIdentityMappingRepository(t)
		defer mockDB.Close()

		im, err := mapping.NewIdentityMapping("acme-books", syncdomain.EntityCustomer, "80000001-1", "42", "fp")
		require.NoError(t, err)

		rows := sqlmock.NewRows([]string{"id", "pairing", "entity", "source_id", "destination_id", "fingerprint", "last_synced_at", "outcome", "created_at", "updated_at"}).
			AddRow(im.ID, im.Pairing, im.Entity, im.SourceID, im.DestinationID, im.Fingerprint, im.LastSyncedAt, im.Outcome, im.CreatedAt, im.UpdatedAt)

		mock.ExpectQuery(`SELECT \* FROM "identity_mappings" WHERE pairing = \$1 AND entity = \$2 AND source_id = \$3 ORDER BY .* LIMIT .*`).
			WithArgs("acme-books", syncdomain.EntityCustomer, "80000001-1", 1).
			WillReturnRows(rows)

		found, err := repo.Resolve(context.Background(), "acme-books", syncdomain.EntityCustomer, "80000001-1")

		assert.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "42", found.DestinationID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns domain error when no mapping exists", func(t *testing.T) {
		repo, mock, mockDB := newMockIdentityMappingRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "identity_mappings" WHERE pairing = \$1 AND entity = \$2 AND source_id = \$3 ORDER BY .* LIMIT .*`).
			WithArgs("acme-books", syncdomain.EntityItem, "missing", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		found, err := repo.Resolve(context.Background(), "acme-books", syncdomain.EntityItem, "missing")

		assert.Nil(t, found)
		assert.ErrorIs(t, err, mapping.ErrMappingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormIdentityMappingRepository_Record(t *testing.T) {
	t.Run("inserts with conflict clause on the source key", func(t *testing.T) {
		repo, mock, mockDB := newMockIdentityMappingRepository(t)
		defer mockDB.Close()

		im, err := mapping.NewIdentityMapping("acme-books", syncdomain.EntityVendor, "90000001-1", "7", "fp")
		require.NoError(t, err)

		mock.ExpectExec(`INSERT INTO "identity_mappings" .* ON CONFLICT \("pairing","entity","source_id"\) DO UPDATE SET .*`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		assert.NoError(t, repo.Record(context.Background(), im))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormIdentityMappingRepository_CountByEntity(t *testing.T) {
	t.Run("groups counts by entity type", func(t *testing.T) {
		repo, mock, mockDB := newMockIdentityMappingRepository(t)
		defer mockDB.Close()

		rows := sqlmock.NewRows([]string{"entity", "total"}).
			AddRow("CUSTOMER", 12).
			AddRow("ITEM", 3)

		mock.ExpectQuery(`SELECT entity, COUNT\(\*\) AS total FROM "identity_mappings" WHERE pairing = \$1 GROUP BY .*`).
			WithArgs("acme-books").
			WillReturnRows(rows)

		counts, err := repo.CountByEntity(context.Background(), "acme-books")

		assert.NoError(t, err)
		assert.Equal(t, int64(12), counts[syncdomain.EntityCustomer])
		assert.Equal(t, int64(3), counts[syncdomain.EntityItem])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCheckpointStore_Commit(t *testing.T) {
	newStore := func(t *testing.T) (*GormCheckpointStore, sqlmock.Sqlmock, *sql.DB) {
		mockDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		dialector := postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"})
		gormDB, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
		require.NoError(t, err)
		return NewGormCheckpointStore(gormDB), mock, mockDB
	}

	t.Run("appends when the cursor advances", func(t *testing.T) {
		store, mock, mockDB := newStore(t)
		defer mockDB.Close()

		cp, err := syncdomain.NewCheckpoint("acme-books", syncdomain.EntityCustomer, "80000002-1", syncdomain.OutcomeOK)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "checkpoints" WHERE pairing = \$1 AND entity = \$2 ORDER BY committed_at DESC.*`).
			WithArgs("acme-books", syncdomain.EntityCustomer, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "pairing", "entity", "cursor", "outcome", "committed_at"}).
				AddRow(cp.ID, cp.Pairing, cp.Entity, "80000001-1", "OK", time.Now()))
		mock.ExpectExec(`INSERT INTO "checkpoints" .*`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		assert.NoError(t, store.Commit(context.Background(), cp))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a regressing cursor", func(t *testing.T) {
		store, mock, mockDB := newStore(t)
		defer mockDB.Close()

		cp, err := syncdomain.NewCheckpoint("acme-books", syncdomain.EntityCustomer, "80000001-1", syncdomain.OutcomeOK)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "checkpoints" WHERE pairing = \$1 AND entity = \$2 ORDER BY committed_at DESC.*`).
			WithArgs("acme-books", syncdomain.EntityCustomer, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "pairing", "entity", "cursor", "outcome", "committed_at"}).
				AddRow(cp.ID, cp.Pairing, cp.Entity, "80000005-1", "OK", time.Now()))
		mock.ExpectRollback()

		err = store.Commit(context.Background(), cp)
		assert.ErrorIs(t, err, syncdomain.ErrCheckpointRegression)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("done marker commits regardless of cursor order", func(t *testing.T) {
		store, mock, mockDB := newStore(t)
		defer mockDB.Close()

		cp, err := syncdomain.NewCheckpoint("acme-books", syncdomain.EntityCustomer, "80000001-1", syncdomain.OutcomeDone)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "checkpoints" WHERE pairing = \$1 AND entity = \$2 ORDER BY committed_at DESC.*`).
			WithArgs("acme-books", syncdomain.EntityCustomer, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "pairing", "entity", "cursor", "outcome", "committed_at"}).
				AddRow(cp.ID, cp.Pairing, cp.Entity, "80000005-1", "OK", time.Now()))
		mock.ExpectExec(`INSERT INTO "checkpoints" .*`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		assert.NoError(t, store.Commit(context.Background(), cp))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cursor restarts after a done marker", func(t *testing.T) {
		store, mock, mockDB := newStore(t)
		defer mockDB.Close()

		cp, err := syncdomain.NewCheckpoint("acme-books", syncdomain.EntityCustomer, "80000001-1", syncdomain.OutcomeOK)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "checkpoints" WHERE pairing = \$1 AND entity = \$2 ORDER BY committed_at DESC.*`).
			WithArgs("acme-books", syncdomain.EntityCustomer, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "pairing", "entity", "cursor", "outcome", "committed_at"}).
				AddRow(cp.ID, cp.Pairing, cp.Entity, "80000005-1", "DONE", time.Now()))
		mock.ExpectExec(`INSERT INTO "checkpoints" .*`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		assert.NoError(t, store.Commit(context.Background(), cp))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("first checkpoint needs no predecessor", func(t *testing.T) {
		store, mock, mockDB := newStore(t)
		defer mockDB.Close()

		cp, err := syncdomain.NewCheckpoint("acme-books", syncdomain.EntityItem, "1-1", syncdomain.OutcomePartial)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "checkpoints" WHERE pairing = \$1 AND entity = \$2 ORDER BY committed_at DESC.*`).
			WithArgs("acme-books", syncdomain.EntityItem, 1).
			WillReturnError(gorm.ErrRecordNotFound)
		mock.ExpectExec(`INSERT INTO "checkpoints" .*`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		assert.NoError(t, store.Commit(context.Background(), cp))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCheckpointStore_Latest(t *testing.T) {
	t.Run("missing entity log is a domain error", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer mockDB.Close()
		dialector := postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"})
		gormDB, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
		require.NoError(t, err)
		store := NewGormCheckpointStore(gormDB)

		mock.ExpectQuery(`SELECT \* FROM "checkpoints" WHERE pairing = \$1 AND entity = \$2 ORDER BY committed_at DESC.*`).
			WithArgs("acme-books", syncdomain.EntityBill, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		cp, err := store.Latest(context.Background(), "acme-books", syncdomain.EntityBill)
		assert.Nil(t, cp)
		assert.ErrorIs(t, err, syncdomain.ErrCheckpointNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

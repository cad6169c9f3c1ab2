package books

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"booknet-backend/internal/platform/db"
	"booknet-backend/internal/platform/db/dbtest"
)

type fixture struct {
	conn     *sql.DB
	store    *SQLStore
	engine   *Engine
	owner    int64
	borrower int64
	other    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	store := NewSQLStore(conn, db.SQLite)
	return &fixture{
		conn:     conn,
		store:    store,
		engine:   NewEngine(store),
		owner:    dbtest.CreateUser(t, conn, "Olivia", "Owner"),
		borrower: dbtest.CreateUser(t, conn, "Victor", "Borrower"),
		other:    dbtest.CreateUser(t, conn, "Wendy", "Walker"),
	}
}

// addBook は owner の本を直接登録する
func (f *fixture) addBook(t *testing.T, owner int64, title string, shareable, archived bool) int64 {
	t.Helper()
	now := time.Now().UTC()
	b := &Book{
		OwnerID:    owner,
		Title:      title,
		AuthorName: "Robert C. Martin",
		ISBN:       "9780134190440",
		Synopsis:   "synopsis of " + title,
		Shareable:  shareable,
		Archived:   archived,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := f.store.RunInTx(context.Background(), func(ctx context.Context, tx CatalogTx) error {
		return tx.SaveBook(ctx, b)
	})
	require.NoError(t, err)
	return b.ID
}

func (f *fixture) book(t *testing.T, id int64) *Book {
	t.Helper()
	var b *Book
	err := f.store.ReadSnapshot(context.Background(), func(ctx context.Context, tx CatalogTx) error {
		var err error
		b, err = tx.GetBook(ctx, id)
		return err
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) loan(t *testing.T, id int64) LendingTransaction {
	t.Helper()
	var lt LendingTransaction
	err := f.conn.QueryRow(
		`SELECT id, book_id, borrower_id, returned, return_approved, version, created_at, updated_at
		 FROM lending_transactions WHERE id = ?`, id,
	).Scan(&lt.ID, &lt.BookID, &lt.BorrowerID, &lt.Returned, &lt.ReturnApproved, &lt.Version, &lt.CreatedAt, &lt.UpdatedAt)
	require.NoError(t, err)
	return lt
}

func (f *fixture) countLoans(t *testing.T, bookID int64, outstandingOnly bool) int {
	t.Helper()
	q := `SELECT COUNT(*) FROM lending_transactions WHERE book_id = ?`
	if outstandingOnly {
		q += ` AND return_approved = 0`
	}
	var n int
	require.NoError(t, f.conn.QueryRow(q, bookID).Scan(&n))
	return n
}

package books

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"

	"booknet-backend/internal/platform/apperr"
	"booknet-backend/internal/platform/db"
	"booknet-backend/internal/platform/paging"
)

// CatalogStore is the only way the lending engine touches persisted state.
type CatalogStore interface {
	// RunInTx runs fn in a write transaction. Rows read through the CatalogTx
	// stay locked (or the whole database is write-locked) until fn returns.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx CatalogTx) error) error
	// ReadSnapshot runs fn in a read-only transaction.
	ReadSnapshot(ctx context.Context, fn func(ctx context.Context, tx CatalogTx) error) error
}

type CatalogTx interface {
	GetBook(ctx context.Context, bookID int64) (*Book, error)
	SaveBook(ctx context.Context, b *Book) error
	SaveTransaction(ctx context.Context, t *LendingTransaction) error

	FindOutstandingByBookAndBorrower(ctx context.Context, bookID, borrowerID int64) (*LendingTransaction, error)
	FindOutstandingByBookAndOwner(ctx context.Context, bookID, ownerID int64) (*LendingTransaction, error)
	HasAnyOutstandingForBook(ctx context.Context, bookID int64) (bool, error)

	ListDisplayableBooks(ctx context.Context, requesterID int64, p paging.Page) ([]Book, int64, error)
	ListBooksByOwner(ctx context.Context, ownerID int64, p paging.Page) ([]Book, int64, error)
	ListOutstandingForBooks(ctx context.Context, bookIDs []int64) ([]LendingTransaction, error)
	ListLoans(ctx context.Context, f LoanFilter, p paging.Page) ([]LoanView, int64, error)
}

// ===== SQL 実装（MySQL / SQLite 共通） =====

type SQLStore struct {
	conn    *sql.DB
	dialect db.Dialect
	qb      goqu.DialectWrapper
}

func NewSQLStore(conn *sql.DB, d db.Dialect) *SQLStore {
	return &SQLStore{conn: conn, dialect: d, qb: goqu.Dialect(string(d))}
}

func (s *SQLStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx CatalogTx) error) error {
	err := db.RunInTx(ctx, s.conn, nil, func(ctx context.Context, q db.DBTX) error {
		return fn(ctx, s.newTx(q, true))
	})
	return db.Classify(err, "catalog write")
}

func (s *SQLStore) ReadSnapshot(ctx context.Context, fn func(ctx context.Context, tx CatalogTx) error) error {
	err := db.ReadOnly(ctx, s.conn, s.dialect, func(ctx context.Context, q db.DBTX) error {
		return fn(ctx, s.newTx(q, false))
	})
	return db.Classify(err, "catalog read")
}

func (s *SQLStore) newTx(q db.DBTX, write bool) *sqlTx {
	t := &sqlTx{q: q, qb: s.qb}
	// SQLite は BEGIN IMMEDIATE でDB全体を書き込みロックするので行ロック句は不要
	if write && s.dialect == db.MySQL {
		t.lockBook = " FOR UPDATE OF b"
		t.lockLoan = " FOR UPDATE OF lt"
	}
	return t
}

type sqlTx struct {
	q        db.DBTX
	qb       goqu.DialectWrapper
	lockBook string
	lockLoan string
}

const bookColumns = `b.id, b.owner_id, u.first_name, u.last_name, b.title, b.author_name, b.isbn, b.synopsis,
	b.rate, b.book_cover, b.archived, b.shareable, b.version, b.created_at, b.updated_at`

var bookSelect = []any{
	"b.id", "b.owner_id", "u.first_name", "u.last_name", "b.title", "b.author_name", "b.isbn", "b.synopsis",
	"b.rate", "b.book_cover", "b.archived", "b.shareable", "b.version", "b.created_at", "b.updated_at",
}

const loanColumns = `lt.id, lt.book_id, lt.borrower_id, lt.returned, lt.return_approved, lt.version, lt.created_at, lt.updated_at`

var loanSelect = []any{
	"lt.id", "lt.book_id", "lt.borrower_id", "lt.returned", "lt.return_approved", "lt.version", "lt.created_at", "lt.updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(r rowScanner) (*Book, error) {
	var b Book
	if err := r.Scan(
		&b.ID, &b.OwnerID, &b.OwnerFirstName, &b.OwnerLastName, &b.Title, &b.AuthorName, &b.ISBN, &b.Synopsis,
		&b.Rate, &b.BookCover, &b.Archived, &b.Shareable, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanLoan(r rowScanner, extra ...any) (*LendingTransaction, error) {
	var t LendingTransaction
	dest := []any{&t.ID, &t.BookID, &t.BorrowerID, &t.Returned, &t.ReturnApproved, &t.Version, &t.CreatedAt, &t.UpdatedAt}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &t, nil
}

// ---- point lookups ----

func (t *sqlTx) GetBook(ctx context.Context, bookID int64) (*Book, error) {
	q := `SELECT ` + bookColumns + `
	FROM books b
	JOIN users u ON u.id = b.owner_id
	WHERE b.id = ?` + t.lockBook

	b, err := scanBook(t.q.QueryRowContext(ctx, q, bookID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("No book found with the id " + itoa(bookID))
		}
		return nil, db.Classify(err, "select book")
	}
	return b, nil
}

func (t *sqlTx) FindOutstandingByBookAndBorrower(ctx context.Context, bookID, borrowerID int64) (*LendingTransaction, error) {
	q := `SELECT ` + loanColumns + `
	FROM lending_transactions lt
	WHERE lt.book_id = ? AND lt.borrower_id = ? AND lt.return_approved = ?
	ORDER BY lt.id DESC
	LIMIT 1` + t.lockLoan

	return t.findLoan(ctx, "select outstanding loan by borrower", q, bookID, borrowerID, false)
}

// FindOutstandingByBookAndOwner は所有者の本に対する未承認の貸出を1件返す。
// 返却申告済みのものを優先し、その中で古い順。
func (t *sqlTx) FindOutstandingByBookAndOwner(ctx context.Context, bookID, ownerID int64) (*LendingTransaction, error) {
	q := `SELECT ` + loanColumns + `
	FROM lending_transactions lt
	JOIN books b ON b.id = lt.book_id
	WHERE lt.book_id = ? AND b.owner_id = ? AND lt.return_approved = ?
	ORDER BY lt.returned DESC, lt.created_at ASC, lt.id ASC
	LIMIT 1` + t.lockLoan

	return t.findLoan(ctx, "select outstanding loan by owner", q, bookID, ownerID, false)
}

func (t *sqlTx) findLoan(ctx context.Context, op, q string, args ...any) (*LendingTransaction, error) {
	loan, err := scanLoan(t.q.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, db.Classify(err, op)
	}
	return loan, nil
}

func (t *sqlTx) HasAnyOutstandingForBook(ctx context.Context, bookID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM lending_transactions WHERE book_id = ? AND return_approved = ?)`
	var exists bool
	if err := t.q.QueryRowContext(ctx, q, bookID, false).Scan(&exists); err != nil {
		return false, db.Classify(err, "check outstanding loans")
	}
	return exists, nil
}

// ---- writes ----

// SaveBook: ID=0 なら INSERT、それ以外は version による楽観ロック付き UPDATE。
// rate はフィードバック側で更新するのでここでは触らない。
func (t *sqlTx) SaveBook(ctx context.Context, b *Book) error {
	if b.ID == 0 {
		const q = `
		INSERT INTO books
		(owner_id, title, author_name, isbn, synopsis, rate, book_cover, archived, shareable, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`
		res, err := t.q.ExecContext(ctx, q,
			b.OwnerID, b.Title, b.AuthorName, b.ISBN, b.Synopsis, b.Rate, nullStrOrNil(b.BookCover),
			b.Archived, b.Shareable, b.CreatedAt, b.UpdatedAt,
		)
		if err != nil {
			return db.Classify(err, "insert book")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return db.Classify(err, "insert book")
		}
		b.ID = id
		return nil
	}

	const q = `
	UPDATE books
	SET title = ?, author_name = ?, isbn = ?, synopsis = ?, book_cover = ?, archived = ?, shareable = ?,
		version = version + 1, updated_at = ?
	WHERE id = ? AND version = ?`
	res, err := t.q.ExecContext(ctx, q,
		b.Title, b.AuthorName, b.ISBN, b.Synopsis, nullStrOrNil(b.BookCover), b.Archived, b.Shareable,
		b.UpdatedAt, b.ID, b.Version,
	)
	if err != nil {
		return db.Classify(err, "update book")
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apperr.Conflict("book " + itoa(b.ID) + " was modified concurrently")
	}
	b.Version++
	return nil
}

// SaveTransaction: 承認済みの行は UPDATE 条件で弾く（終端状態は書き換えない）。
func (t *sqlTx) SaveTransaction(ctx context.Context, lt *LendingTransaction) error {
	if lt.ID == 0 {
		const q = `
		INSERT INTO lending_transactions
		(book_id, borrower_id, returned, return_approved, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`
		res, err := t.q.ExecContext(ctx, q,
			lt.BookID, lt.BorrowerID, lt.Returned, lt.ReturnApproved, lt.CreatedAt, lt.UpdatedAt,
		)
		if err != nil {
			return db.Classify(err, "insert lending transaction")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return db.Classify(err, "insert lending transaction")
		}
		lt.ID = id
		return nil
	}

	const q = `
	UPDATE lending_transactions
	SET returned = ?, return_approved = ?, version = version + 1, updated_at = ?
	WHERE id = ? AND version = ? AND return_approved = ?`
	res, err := t.q.ExecContext(ctx, q, lt.Returned, lt.ReturnApproved, lt.UpdatedAt, lt.ID, lt.Version, false)
	if err != nil {
		return db.Classify(err, "update lending transaction")
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return apperr.Conflict("lending transaction " + itoa(lt.ID) + " was modified concurrently")
	}
	lt.Version++
	return nil
}

// ---- page queries ----

// ListDisplayableBooks: 共有中・未アーカイブ・他人の本で、requester がまだ借りたままでないもの。
func (t *sqlTx) ListDisplayableBooks(ctx context.Context, requesterID int64, p paging.Page) ([]Book, int64, error) {
	borrowedByRequester := t.qb.
		From(goqu.T("lending_transactions").As("lt")).
		Select(goqu.L("1")).
		Where(
			goqu.I("lt.book_id").Eq(goqu.I("b.id")),
			goqu.I("lt.borrower_id").Eq(requesterID),
			goqu.I("lt.return_approved").Eq(0),
		)

	return t.listBooks(ctx, p,
		goqu.I("b.archived").Eq(0),
		goqu.I("b.shareable").Eq(1),
		goqu.I("b.owner_id").Neq(requesterID),
		goqu.L("NOT EXISTS ?", borrowedByRequester),
	)
}

// ListBooksByOwner: 所有者の管理画面用。archived/shareable に関係なく全件。
func (t *sqlTx) ListBooksByOwner(ctx context.Context, ownerID int64, p paging.Page) ([]Book, int64, error) {
	return t.listBooks(ctx, p, goqu.I("b.owner_id").Eq(ownerID))
}

func (t *sqlTx) listBooks(ctx context.Context, p paging.Page, where ...exp.Expression) ([]Book, int64, error) {
	base := t.qb.
		From(goqu.T("books").As("b")).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("b.owner_id")))).
		Where(where...).
		Prepared(true)

	total, err := t.count(ctx, base, "count books")
	if err != nil {
		return nil, 0, err
	}

	q, args, err := base.
		Select(bookSelect...).
		Order(ordered(p, "b.created_at"), ordered(p, "b.id")).
		Limit(p.Limit()).
		Offset(p.Offset()).
		ToSQL()
	if err != nil {
		return nil, 0, db.Classify(err, "build book page query")
	}

	rows, err := t.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, db.Classify(err, "select books")
	}
	defer rows.Close()

	out := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, db.Classify(err, "scan book")
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err, "select books")
	}
	return out, total, nil
}

// ListOutstandingForBooks は一覧の isBorrowed 算出用。
func (t *sqlTx) ListOutstandingForBooks(ctx context.Context, bookIDs []int64) ([]LendingTransaction, error) {
	if len(bookIDs) == 0 {
		return nil, nil
	}
	q, args, err := t.qb.
		From(goqu.T("lending_transactions").As("lt")).
		Select(loanSelect...).
		Where(
			goqu.I("lt.book_id").In(bookIDs),
			goqu.I("lt.return_approved").Eq(0),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, db.Classify(err, "build outstanding query")
	}

	rows, err := t.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, db.Classify(err, "select outstanding loans")
	}
	defer rows.Close()

	var out []LendingTransaction
	for rows.Next() {
		lt, err := scanLoan(rows)
		if err != nil {
			return nil, db.Classify(err, "scan lending transaction")
		}
		out = append(out, *lt)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "select outstanding loans")
	}
	return out, nil
}

// ListLoans: 借りた本 / 返却された本 / 貸している本 の一覧に使う。
func (t *sqlTx) ListLoans(ctx context.Context, f LoanFilter, p paging.Page) ([]LoanView, int64, error) {
	where := []exp.Expression{}
	if f.BorrowerID != nil {
		where = append(where, goqu.I("lt.borrower_id").Eq(*f.BorrowerID))
	}
	if f.OwnerID != nil {
		where = append(where, goqu.I("b.owner_id").Eq(*f.OwnerID))
	}
	if f.Returned != nil {
		where = append(where, goqu.I("lt.returned").Eq(boolInt(*f.Returned)))
	}
	if f.ReturnApproved != nil {
		where = append(where, goqu.I("lt.return_approved").Eq(boolInt(*f.ReturnApproved)))
	}

	base := t.qb.
		From(goqu.T("lending_transactions").As("lt")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("lt.book_id")))).
		Join(goqu.T("users").As("br"), goqu.On(goqu.I("br.id").Eq(goqu.I("lt.borrower_id")))).
		Join(goqu.T("users").As("ow"), goqu.On(goqu.I("ow.id").Eq(goqu.I("b.owner_id")))).
		Where(where...).
		Prepared(true)

	total, err := t.count(ctx, base, "count loans")
	if err != nil {
		return nil, 0, err
	}

	cols := append(append([]any{}, loanSelect...),
		"b.title", "b.author_name", "b.isbn", "b.rate",
		"br.first_name", "br.last_name", "ow.first_name", "ow.last_name",
	)
	q, args, err := base.
		Select(cols...).
		Order(ordered(p, "lt.created_at"), ordered(p, "lt.id")).
		Limit(p.Limit()).
		Offset(p.Offset()).
		ToSQL()
	if err != nil {
		return nil, 0, db.Classify(err, "build loan page query")
	}

	rows, err := t.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, db.Classify(err, "select loans")
	}
	defer rows.Close()

	out := []LoanView{}
	for rows.Next() {
		var v LoanView
		lt, err := scanLoan(rows,
			&v.Title, &v.AuthorName, &v.ISBN, &v.Rate,
			&v.BorrowerFirstName, &v.BorrowerLastName, &v.OwnerFirstName, &v.OwnerLastName,
		)
		if err != nil {
			return nil, 0, db.Classify(err, "scan loan")
		}
		v.Transaction = *lt
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err, "select loans")
	}
	return out, total, nil
}

func (t *sqlTx) count(ctx context.Context, base *goqu.SelectDataset, op string) (int64, error) {
	q, args, err := base.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return 0, db.Classify(err, op)
	}
	var total int64
	if err := t.q.QueryRowContext(ctx, q, args...).Scan(&total); err != nil {
		return 0, db.Classify(err, op)
	}
	return total, nil
}

// ---- helpers ----

func ordered(p paging.Page, col string) exp.OrderedExpression {
	if p.Ascending() {
		return goqu.I(col).Asc()
	}
	return goqu.I(col).Desc()
}

// goqu の真偽値リテラルは方言差があるので 0/1 で比較する
func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStrOrNil(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

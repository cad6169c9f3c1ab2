package feedback

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	"booknet-backend/internal/platform/apperr"
	"booknet-backend/internal/platform/db"
	"booknet-backend/internal/platform/paging"
)

type Store struct {
	conn    *sql.DB
	dialect db.Dialect
	qb      goqu.DialectWrapper
}

func NewStore(conn *sql.DB, d db.Dialect) *Store {
	return &Store{conn: conn, dialect: d, qb: goqu.Dialect(string(d))}
}

func (s *Store) BeginWrite(ctx context.Context, fn func(ctx context.Context, q db.DBTX) error) error {
	return db.Classify(db.RunInTx(ctx, s.conn, nil, fn), "feedback write")
}

func (s *Store) BeginRead(ctx context.Context, fn func(ctx context.Context, q db.DBTX) error) error {
	return db.Classify(db.ReadOnly(ctx, s.conn, s.dialect, fn), "feedback read")
}

// getBookStateTx: 書き込みTxでは MySQL のみ行ロックを取る
func (s *Store) getBookStateTx(ctx context.Context, q db.DBTX, bookID int64, lock bool) (*bookState, error) {
	query := `SELECT owner_id, archived, shareable FROM books WHERE id = ?`
	if lock && s.dialect == db.MySQL {
		query += ` FOR UPDATE`
	}
	var b bookState
	err := q.QueryRowContext(ctx, query, bookID).Scan(&b.OwnerID, &b.Archived, &b.Shareable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("No book found with the id " + strconv.FormatInt(bookID, 10))
	}
	if err != nil {
		return nil, db.Classify(err, "select book state")
	}
	return &b, nil
}

func insertFeedbackTx(ctx context.Context, q db.DBTX, f *Feedback) error {
	const stmt = `
INSERT INTO feedbacks (book_id, user_id, note, comment, created_at)
VALUES (?, ?, ?, ?, ?)
`
	res, err := q.ExecContext(ctx, stmt, f.BookID, f.UserID, f.Note, f.Comment, f.CreatedAt)
	if err != nil {
		return db.Classify(err, "insert feedback")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return db.Classify(err, "insert feedback")
	}
	f.ID = id
	return nil
}

// refreshRateTx は books.rate を平均値（小数1桁）で更新する
func refreshRateTx(ctx context.Context, q db.DBTX, bookID int64) (float64, error) {
	const stmt = `
UPDATE books
SET rate = COALESCE((SELECT ROUND(AVG(f.note), 1) FROM feedbacks f WHERE f.book_id = ?), 0)
WHERE id = ?
`
	if _, err := q.ExecContext(ctx, stmt, bookID, bookID); err != nil {
		return 0, db.Classify(err, "update book rate")
	}
	var rate float64
	if err := q.QueryRowContext(ctx, `SELECT rate FROM books WHERE id = ?`, bookID).Scan(&rate); err != nil {
		return 0, db.Classify(err, "select book rate")
	}
	return rate, nil
}

func (s *Store) listByBookTx(ctx context.Context, q db.DBTX, bookID int64, p paging.Page) ([]Feedback, int64, error) {
	base := s.qb.From(goqu.T("feedbacks").As("f")).
		Where(goqu.I("f.book_id").Eq(bookID)).
		Prepared(true)

	cq, cargs, err := base.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return nil, 0, db.Classify(err, "build feedback count")
	}
	var total int64
	if err := q.QueryRowContext(ctx, cq, cargs...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "count feedbacks")
	}

	ds := base.Select("f.id", "f.book_id", "f.user_id", "f.note", "f.comment", "f.created_at")
	if p.Ascending() {
		ds = ds.Order(goqu.I("f.created_at").Asc(), goqu.I("f.id").Asc())
	} else {
		ds = ds.Order(goqu.I("f.created_at").Desc(), goqu.I("f.id").Desc())
	}
	sq, args, err := ds.Limit(p.Limit()).Offset(p.Offset()).ToSQL()
	if err != nil {
		return nil, 0, db.Classify(err, "build feedback page")
	}

	rows, err := q.QueryContext(ctx, sq, args...)
	if err != nil {
		return nil, 0, db.Classify(err, "select feedbacks")
	}
	defer rows.Close()

	out := []Feedback{}
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.BookID, &f.UserID, &f.Note, &f.Comment, &f.CreatedAt); err != nil {
			return nil, 0, db.Classify(err, "scan feedback")
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err, "select feedbacks")
	}
	return out, total, nil
}

package books

import (
	"context"
	"log"
	"time"

	"booknet-backend/internal/platform/apperr"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Engine は貸出まわりの状態遷移をまとめたもの。
// 状態はすべて CatalogStore から毎回読み直し、プロセス内には持たない。
type Engine struct {
	store CatalogStore
	clock Clock
}

func NewEngine(store CatalogStore) *Engine {
	return &Engine{store: store, clock: realClock{}}
}

const (
	msgNotBorrowable    = "The requested book can't be borrowed as it either archived or not shareable"
	msgOwnBook          = "You can't borrow your own book"
	msgOwnBookReturn    = "You can't borrow or return your own book"
	msgAlreadyBorrowed  = "You already borrowed this book and it is still not returned or the return is not approved by the owner"
	msgNotBorrowedByYou = "You didn't borrow this book"
	msgNotOwnerApprove  = "You can't approve the return of a book you do not own"
	msgNotOwnerUpdate   = "You cannot update others books"
	msgNoReturnPending  = "The book is not returned yet. You cannot approve its return"
	msgArchiveBlocked   = "You can't archive, the book is not yet returned"
)

// Borrow creates a new outstanding transaction for (bookID, requester).
func (e *Engine) Borrow(ctx context.Context, bookID, requester int64) (int64, error) {
	return e.run(ctx, "borrow", bookID, func(ctx context.Context, tx CatalogTx) (int64, error) {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return 0, err
		}
		if !book.Borrowable() {
			return 0, apperr.NotPermitted(msgNotBorrowable)
		}
		if book.OwnedBy(requester) {
			return 0, apperr.NotPermitted(msgOwnBook)
		}
		open, err := tx.FindOutstandingByBookAndBorrower(ctx, bookID, requester)
		if err != nil {
			return 0, err
		}
		if open != nil {
			return 0, apperr.NotPermitted(msgAlreadyBorrowed)
		}

		lt := NewLendingTransaction(bookID, requester, e.clock.Now())
		if err := tx.SaveTransaction(ctx, lt); err != nil {
			return 0, err
		}
		return lt.ID, nil
	})
}

// Return marks the requester's outstanding transaction on the book as returned.
func (e *Engine) Return(ctx context.Context, bookID, requester int64) (int64, error) {
	return e.run(ctx, "return", bookID, func(ctx context.Context, tx CatalogTx) (int64, error) {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return 0, err
		}
		if !book.Borrowable() {
			return 0, apperr.NotPermitted(msgNotBorrowable)
		}
		if book.OwnedBy(requester) {
			return 0, apperr.NotPermitted(msgOwnBookReturn)
		}
		lt, err := tx.FindOutstandingByBookAndBorrower(ctx, bookID, requester)
		if err != nil {
			return 0, err
		}
		if lt == nil {
			return 0, apperr.NotPermitted(msgNotBorrowedByYou)
		}

		if err := lt.MarkReturned(e.clock.Now()); err != nil {
			return 0, err
		}
		if err := tx.SaveTransaction(ctx, lt); err != nil {
			return 0, err
		}
		return lt.ID, nil
	})
}

// ApproveReturn は所有者が返却を確認する。承認後の取引は終端状態。
func (e *Engine) ApproveReturn(ctx context.Context, bookID, owner int64) (int64, error) {
	return e.run(ctx, "approve return", bookID, func(ctx context.Context, tx CatalogTx) (int64, error) {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return 0, err
		}
		if !book.Borrowable() {
			return 0, apperr.NotPermitted(msgNotBorrowable)
		}
		if !book.OwnedBy(owner) {
			return 0, apperr.NotPermitted(msgNotOwnerApprove)
		}
		lt, err := tx.FindOutstandingByBookAndOwner(ctx, bookID, owner)
		if err != nil {
			return 0, err
		}
		if lt == nil {
			return 0, apperr.NotPermitted(msgNoReturnPending)
		}

		if err := lt.ApproveReturn(e.clock.Now()); err != nil {
			return 0, err
		}
		if err := tx.SaveTransaction(ctx, lt); err != nil {
			return 0, err
		}
		return lt.ID, nil
	})
}

// ToggleShareable は貸出中でも切り替えられる（既存の貸出には影響しない）。
func (e *Engine) ToggleShareable(ctx context.Context, bookID, requester int64) (int64, error) {
	return e.run(ctx, "toggle shareable", bookID, func(ctx context.Context, tx CatalogTx) (int64, error) {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return 0, err
		}
		if !book.OwnedBy(requester) {
			return 0, apperr.NotPermitted(msgNotOwnerUpdate)
		}

		book.Shareable = !book.Shareable
		book.UpdatedAt = e.clock.Now()
		if err := tx.SaveBook(ctx, book); err != nil {
			return 0, err
		}
		return book.ID, nil
	})
}

func (e *Engine) ToggleArchived(ctx context.Context, bookID, requester int64) (int64, error) {
	return e.run(ctx, "toggle archived", bookID, func(ctx context.Context, tx CatalogTx) (int64, error) {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return 0, err
		}
		if !book.OwnedBy(requester) {
			return 0, apperr.NotPermitted(msgNotOwnerUpdate)
		}
		// アーカイブ解除はいつでも可。アーカイブする時だけ未承認の貸出を確認する
		if !book.Archived {
			busy, err := tx.HasAnyOutstandingForBook(ctx, bookID)
			if err != nil {
				return 0, err
			}
			if busy {
				return 0, apperr.NotPermitted(msgArchiveBlocked)
			}
		}

		book.Archived = !book.Archived
		book.UpdatedAt = e.clock.Now()
		if err := tx.SaveBook(ctx, book); err != nil {
			return 0, err
		}
		return book.ID, nil
	})
}

// run は op を1つの書き込みTxで実行する。CONFLICT のときだけ最新状態で1回やり直す。
func (e *Engine) run(ctx context.Context, op string, bookID int64, fn func(ctx context.Context, tx CatalogTx) (int64, error)) (int64, error) {
	var id int64
	attempt := func() error {
		return e.store.RunInTx(ctx, func(ctx context.Context, tx CatalogTx) error {
			var err error
			id, err = fn(ctx, tx)
			return err
		})
	}

	err := attempt()
	if apperr.Is(err, apperr.CodeConflict) {
		log.Printf("[WARN] %s book_id=%d: %v (retrying once)", op, bookID, err)
		err = attempt()
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

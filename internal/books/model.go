package books

import (
	"database/sql"
	"time"

	"booknet-backend/internal/platform/apperr"
)

// Book は books テーブルの1行。OwnerFirstName/OwnerLastName は users から JOIN した読み取り専用の値。
type Book struct {
	ID             int64
	OwnerID        int64
	OwnerFirstName string
	OwnerLastName  string
	Title          string
	AuthorName     string
	ISBN           string
	Synopsis       string
	Rate           float64
	BookCover      sql.NullString
	Archived       bool
	Shareable      bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Borrowable: 貸出可能な状態か（アーカイブされておらず共有中）
func (b *Book) Borrowable() bool { return !b.Archived && b.Shareable }

func (b *Book) OwnedBy(userID int64) bool { return b.OwnerID == userID }

func (b *Book) OwnerName() string { return fullName(b.OwnerFirstName, b.OwnerLastName) }

// LendingTransaction は1回の貸出の記録。
// returned / returnApproved は false -> true にしか動かず、returnApproved=true で終端。
type LendingTransaction struct {
	ID             int64
	BookID         int64
	BorrowerID     int64
	Returned       bool
	ReturnApproved bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewLendingTransaction(bookID, borrowerID int64, now time.Time) *LendingTransaction {
	return &LendingTransaction{
		BookID:     bookID,
		BorrowerID: borrowerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Outstanding: 所有者の返却承認がまだ
func (t *LendingTransaction) Outstanding() bool { return !t.ReturnApproved }

// MarkReturned は借り手による返却申告。
func (t *LendingTransaction) MarkReturned(now time.Time) error {
	if t.ReturnApproved {
		return apperr.NotPermitted("The return of this book has already been approved")
	}
	if t.Returned {
		return apperr.NotPermitted("You have already returned this book")
	}
	t.Returned = true
	t.UpdatedAt = now
	return nil
}

// ApproveReturn は所有者による返却承認。借り手の返却申告が先に必要。
func (t *LendingTransaction) ApproveReturn(now time.Time) error {
	if t.ReturnApproved {
		return apperr.NotPermitted("The return of this book has already been approved")
	}
	if !t.Returned {
		return apperr.NotPermitted("The book is not yet returned by the borrower")
	}
	t.ReturnApproved = true
	t.UpdatedAt = now
	return nil
}

// LoanView は貸出一覧用に本と利用者の情報を JOIN したもの。
type LoanView struct {
	Transaction       LendingTransaction
	Title             string
	AuthorName        string
	ISBN              string
	Rate              float64
	BorrowerFirstName string
	BorrowerLastName  string
	OwnerFirstName    string
	OwnerLastName     string
}

// LoanFilter: nil の項目は条件に含めない
type LoanFilter struct {
	BorrowerID     *int64
	OwnerID        *int64
	Returned       *bool
	ReturnApproved *bool
}

func fullName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

package books

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_IsBorrowed(t *testing.T) {
	assert.False(t, IsBorrowed(nil))
	assert.False(t, IsBorrowed([]LendingTransaction{{ReturnApproved: true}, {Returned: true, ReturnApproved: true}}))
	assert.True(t, IsBorrowed([]LendingTransaction{{ReturnApproved: true}, {Returned: true}}))
}

func Test_ToBookResponse(t *testing.T) {
	b := &Book{
		ID:             3,
		OwnerFirstName: "Olivia",
		OwnerLastName:  "Owner",
		Title:          "Clean Architecture",
		AuthorName:     "Robert C. Martin",
		ISBN:           "9780134494166",
		Rate:           4.5,
		Shareable:      true,
		BookCover:      sql.NullString{String: "users/1/cover.png", Valid: true},
	}
	loans := []LendingTransaction{
		{BookID: 9}, // 別の本の貸出は数えない
		{BookID: 3, ReturnApproved: true},
	}

	got := ToBookResponse(b, loans)
	assert.Equal(t, "Olivia Owner", got.Owner)
	assert.Equal(t, "/api/v1/books/detail/3/cover", got.Cover)
	assert.False(t, got.IsBorrowed)
	assert.Equal(t, 4.5, got.Rate)

	got = ToBookResponse(b, append(loans, LendingTransaction{BookID: 3}))
	assert.True(t, got.IsBorrowed)

	b.BookCover = sql.NullString{}
	assert.Empty(t, ToBookResponse(b, nil).Cover)
}

func Test_ToBorrowedBookResponse(t *testing.T) {
	v := LoanView{
		Transaction:       LendingTransaction{ID: 11, BookID: 3, Returned: true},
		Title:             "SICP",
		BorrowerFirstName: "Victor",
		BorrowerLastName:  "Borrower",
		OwnerFirstName:    "Olivia",
	}
	got := ToBorrowedBookResponse(v)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, int64(11), got.TransactionID)
	assert.Equal(t, "Victor Borrower", got.BorrowerName)
	assert.Equal(t, "Olivia", got.OwnerName)
	assert.True(t, got.Returned)
	assert.False(t, got.ReturnApproved)
}

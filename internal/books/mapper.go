package books

import "strconv"

// IsBorrowed: 未承認の貸出が1件でもあれば貸出中。保存はせず毎回算出する。
func IsBorrowed(loans []LendingTransaction) bool {
	for _, lt := range loans {
		if lt.Outstanding() {
			return true
		}
	}
	return false
}

// ToBookResponse maps a book and the transactions recorded on it.
// loans may contain transactions of other books; only those of b count.
func ToBookResponse(b *Book, loans []LendingTransaction) BookResponse {
	own := make([]LendingTransaction, 0, len(loans))
	for _, lt := range loans {
		if lt.BookID == b.ID {
			own = append(own, lt)
		}
	}

	resp := BookResponse{
		ID:         b.ID,
		Title:      b.Title,
		AuthorName: b.AuthorName,
		ISBN:       b.ISBN,
		Synopsis:   b.Synopsis,
		Owner:      b.OwnerName(),
		Rate:       b.Rate,
		Archived:   b.Archived,
		Shareable:  b.Shareable,
		IsBorrowed: IsBorrowed(own),
	}
	if b.BookCover.Valid && b.BookCover.String != "" {
		resp.Cover = coverURL(b.ID)
	}
	return resp
}

func ToBorrowedBookResponse(v LoanView) BorrowedBookResponse {
	return BorrowedBookResponse{
		ID:             v.Transaction.BookID,
		TransactionID:  v.Transaction.ID,
		Title:          v.Title,
		AuthorName:     v.AuthorName,
		ISBN:           v.ISBN,
		Rate:           v.Rate,
		BorrowerName:   fullName(v.BorrowerFirstName, v.BorrowerLastName),
		OwnerName:      fullName(v.OwnerFirstName, v.OwnerLastName),
		Returned:       v.Transaction.Returned,
		ReturnApproved: v.Transaction.ReturnApproved,
	}
}

// handler の GET /books/detail/:book_id/cover と対応
func coverURL(bookID int64) string {
	return "/api/v1/books/detail/" + strconv.FormatInt(bookID, 10) + "/cover"
}

package books

// 本の登録リクエスト
type CreateBookRequest struct {
	Title      string `json:"title" validate:"required,max=255"`
	AuthorName string `json:"author_name" validate:"required,max=255"`
	// ハイフン・全角数字は登録前に正規化される
	ISBN      string `json:"isbn" validate:"required,isbn"`
	Synopsis  string `json:"synopsis" validate:"required"`
	Shareable bool   `json:"shareable"`
}

type BookResponse struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	AuthorName string  `json:"author_name"`
	ISBN       string  `json:"isbn"`
	Synopsis   string  `json:"synopsis"`
	Owner      string  `json:"owner"`
	Cover      string  `json:"cover,omitempty"`
	Rate       float64 `json:"rate"`
	Archived   bool    `json:"archived"`
	Shareable  bool    `json:"shareable"`
	IsBorrowed bool    `json:"is_borrowed"`
}

// 借りた本 / 返却された本 / 貸している本 の一覧の1行
type BorrowedBookResponse struct {
	ID             int64   `json:"id"`
	TransactionID  int64   `json:"transaction_id"`
	Title          string  `json:"title"`
	AuthorName     string  `json:"author_name"`
	ISBN           string  `json:"isbn"`
	Rate           float64 `json:"rate"`
	BorrowerName   string  `json:"borrower_name"`
	OwnerName      string  `json:"owner_name"`
	Returned       bool    `json:"returned"`
	ReturnApproved bool    `json:"return_approved"`
}

type IDResponse struct {
	ID int64 `json:"id"`
}

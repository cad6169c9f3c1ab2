package books

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"booknet-backend/internal/platform/apperr"
	"booknet-backend/internal/platform/paging"
)

// ===== Service本体 =====

type Service struct {
	store    CatalogStore
	engine   *Engine
	covers   CoverStorage
	validate *validator.Validate
	clock    Clock
}

func NewService(store CatalogStore, covers CoverStorage) *Service {
	return &Service{
		store:    store,
		engine:   NewEngine(store),
		covers:   covers,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clock:    realClock{},
	}
}

// 本の登録
func (s *Service) CreateBook(ctx context.Context, owner int64, req CreateBookRequest) (int64, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.AuthorName = strings.TrimSpace(req.AuthorName)
	req.ISBN = NormalizeISBN(req.ISBN)
	if err := s.validate.Struct(req); err != nil {
		return 0, validationError(err)
	}

	now := s.clock.Now()
	b := &Book{
		OwnerID:    owner,
		Title:      req.Title,
		AuthorName: req.AuthorName,
		ISBN:       req.ISBN,
		Synopsis:   req.Synopsis,
		Shareable:  req.Shareable,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx CatalogTx) error {
		return tx.SaveBook(ctx, b)
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[INFO] book created id=%d owner=%d", b.ID, owner)
	return b.ID, nil
}

func (s *Service) GetBook(ctx context.Context, bookID int64) (*BookResponse, error) {
	var resp BookResponse
	err := s.store.ReadSnapshot(ctx, func(ctx context.Context, tx CatalogTx) error {
		b, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		loans, err := tx.ListOutstandingForBooks(ctx, []int64{b.ID})
		if err != nil {
			return err
		}
		resp = ToBookResponse(b, loans)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---- 貸出操作（Engine へ委譲） ----

func (s *Service) Borrow(ctx context.Context, bookID, requester int64) (int64, error) {
	return s.engine.Borrow(ctx, bookID, requester)
}

func (s *Service) Return(ctx context.Context, bookID, requester int64) (int64, error) {
	return s.engine.Return(ctx, bookID, requester)
}

func (s *Service) ApproveReturn(ctx context.Context, bookID, owner int64) (int64, error) {
	return s.engine.ApproveReturn(ctx, bookID, owner)
}

func (s *Service) ToggleShareable(ctx context.Context, bookID, requester int64) (int64, error) {
	return s.engine.ToggleShareable(ctx, bookID, requester)
}

func (s *Service) ToggleArchived(ctx context.Context, bookID, requester int64) (int64, error) {
	return s.engine.ToggleArchived(ctx, bookID, requester)
}

// ---- 一覧 ----

// ListDisplayable は requester が借りられる本の一覧。
func (s *Service) ListDisplayable(ctx context.Context, requester int64, p paging.Page) (paging.Response[BookResponse], error) {
	p = p.Normalize()
	return s.bookPage(ctx, p, func(ctx context.Context, tx CatalogTx) ([]Book, int64, error) {
		return tx.ListDisplayableBooks(ctx, requester, p)
	})
}

func (s *Service) ListOwned(ctx context.Context, owner int64, p paging.Page) (paging.Response[BookResponse], error) {
	p = p.Normalize()
	return s.bookPage(ctx, p, func(ctx context.Context, tx CatalogTx) ([]Book, int64, error) {
		return tx.ListBooksByOwner(ctx, owner, p)
	})
}

// bookPage: p は呼び出し側で Normalize 済みであること
func (s *Service) bookPage(ctx context.Context, p paging.Page, list func(ctx context.Context, tx CatalogTx) ([]Book, int64, error)) (paging.Response[BookResponse], error) {
	var out paging.Response[BookResponse]
	err := s.store.ReadSnapshot(ctx, func(ctx context.Context, tx CatalogTx) error {
		books, total, err := list(ctx, tx)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(books))
		for _, b := range books {
			ids = append(ids, b.ID)
		}
		loans, err := tx.ListOutstandingForBooks(ctx, ids)
		if err != nil {
			return err
		}

		content := make([]BookResponse, 0, len(books))
		for i := range books {
			content = append(content, ToBookResponse(&books[i], loans))
		}
		out = paging.NewResponse(content, p, total)
		return nil
	})
	return out, err
}

// ListBorrowed: 自分が借りた本（返却承認済みも含む）
func (s *Service) ListBorrowed(ctx context.Context, requester int64, p paging.Page) (paging.Response[BorrowedBookResponse], error) {
	return s.loanPage(ctx, LoanFilter{BorrowerID: &requester}, p)
}

// ListReturned: 自分の本のうち借り手が返却申告したもの
func (s *Service) ListReturned(ctx context.Context, owner int64, p paging.Page) (paging.Response[BorrowedBookResponse], error) {
	returned := true
	return s.loanPage(ctx, LoanFilter{OwnerID: &owner, Returned: &returned}, p)
}

// ListLent: 自分の本で返却承認がまだのもの
func (s *Service) ListLent(ctx context.Context, owner int64, p paging.Page) (paging.Response[BorrowedBookResponse], error) {
	approved := false
	return s.loanPage(ctx, LoanFilter{OwnerID: &owner, ReturnApproved: &approved}, p)
}

func (s *Service) loanPage(ctx context.Context, f LoanFilter, p paging.Page) (paging.Response[BorrowedBookResponse], error) {
	p = p.Normalize()
	var out paging.Response[BorrowedBookResponse]
	err := s.store.ReadSnapshot(ctx, func(ctx context.Context, tx CatalogTx) error {
		views, total, err := tx.ListLoans(ctx, f, p)
		if err != nil {
			return err
		}
		content := make([]BorrowedBookResponse, 0, len(views))
		for _, v := range views {
			content = append(content, ToBorrowedBookResponse(v))
		}
		out = paging.NewResponse(content, p, total)
		return nil
	})
	return out, err
}

// ---- 表紙画像 ----

// UploadCover は所有者だけが表紙を差し替えられる。
func (s *Service) UploadCover(ctx context.Context, bookID, requester int64, filename string, r io.Reader) (int64, error) {
	var id int64
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx CatalogTx) error {
		b, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if !b.OwnedBy(requester) {
			return apperr.NotPermitted(msgNotOwnerUpdate)
		}

		ref, err := s.covers.Save(ctx, b.OwnerID, filename, r)
		if err != nil {
			return err
		}
		b.BookCover.String, b.BookCover.Valid = ref, true
		b.UpdatedAt = s.clock.Now()
		if err := tx.SaveBook(ctx, b); err != nil {
			return err
		}
		id = b.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// OpenCover returns the stored cover and its reference (used for the content type).
func (s *Service) OpenCover(ctx context.Context, bookID int64) (io.ReadCloser, string, error) {
	var ref string
	err := s.store.ReadSnapshot(ctx, func(ctx context.Context, tx CatalogTx) error {
		b, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if !b.BookCover.Valid || b.BookCover.String == "" {
			return apperr.NotFound("No cover for the book " + itoa(bookID))
		}
		ref = b.BookCover.String
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	rc, err := s.covers.Open(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	return rc, ref, nil
}

// ---- CSV 出力 ----

const (
	EncodingUTF8     = "utf-8"
	EncodingShiftJIS = "shift_jis"

	exportPageSize = 100
)

var exportHeader = []string{"id", "title", "author_name", "isbn", "rate", "archived", "shareable", "is_borrowed", "created_at"}

// ExportOwned は所有する本を全件 CSV で w に書き出す。
// shift_jis は Excel で開く用。表現できない文字は置換される。
func (s *Service) ExportOwned(ctx context.Context, owner int64, enc string, w io.Writer) error {
	var out io.Writer = w
	var closer io.Closer
	switch strings.ToLower(enc) {
	case "", EncodingUTF8:
	case EncodingShiftJIS, "sjis", "cp932":
		tw := transform.NewWriter(w, encoding.ReplaceUnsupported(japanese.ShiftJIS.NewEncoder()))
		out, closer = tw, tw
	default:
		return apperr.Invalid("unsupported encoding: " + enc)
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}

	err := s.store.ReadSnapshot(ctx, func(ctx context.Context, tx CatalogTx) error {
		p := paging.Page{Number: 0, Size: exportPageSize, Order: paging.OrderAsc}
		for {
			books, total, err := tx.ListBooksByOwner(ctx, owner, p)
			if err != nil {
				return err
			}
			ids := make([]int64, 0, len(books))
			for _, b := range books {
				ids = append(ids, b.ID)
			}
			loans, err := tx.ListOutstandingForBooks(ctx, ids)
			if err != nil {
				return err
			}
			for i := range books {
				if err := cw.Write(exportRecord(&books[i], loans)); err != nil {
					return err
				}
			}
			if int64((p.Number+1)*p.Size) >= total || len(books) == 0 {
				return nil
			}
			p.Number++
		}
	})
	if err != nil {
		return err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if closer != nil {
		return closer.Close()
	}
	return nil
}

func exportRecord(b *Book, loans []LendingTransaction) []string {
	r := ToBookResponse(b, loans)
	return []string{
		strconv.FormatInt(b.ID, 10),
		b.Title,
		b.AuthorName,
		b.ISBN,
		strconv.FormatFloat(b.Rate, 'f', 1, 64),
		strconv.FormatBool(b.Archived),
		strconv.FormatBool(b.Shareable),
		strconv.FormatBool(r.IsBorrowed),
		b.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

// validator のエラーを INVALID_ARGUMENT に寄せる
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apperr.Invalid(err.Error())
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, strings.ToLower(fe.Field())+" failed on "+fe.Tag())
	}
	return apperr.Invalid(strings.Join(msgs, ", "))
}

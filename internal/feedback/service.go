package feedback

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"booknet-backend/internal/platform/apperr"
	"booknet-backend/internal/platform/db"
	"booknet-backend/internal/platform/paging"
)

type Service struct {
	store    *Store
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store *Store) *Service {
	return &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Save は評価を登録し、同じTxで本の平均評価を更新する。
func (s *Service) Save(ctx context.Context, requester int64, req CreateFeedbackRequest) (int64, error) {
	req.Comment = strings.TrimSpace(req.Comment)
	if err := s.validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return 0, apperr.Invalid(strings.ToLower(ve[0].Field()) + " failed on " + ve[0].Tag())
		}
		return 0, apperr.Invalid(err.Error())
	}

	f := &Feedback{
		BookID:    req.BookID,
		UserID:    requester,
		Note:      req.Note,
		Comment:   req.Comment,
		CreatedAt: s.now(),
	}
	var rate float64
	err := s.store.BeginWrite(ctx, func(ctx context.Context, q db.DBTX) error {
		b, err := s.store.getBookStateTx(ctx, q, req.BookID, true)
		if err != nil {
			return err
		}
		if b.Archived || !b.Shareable {
			return apperr.NotPermitted("You cannot give a feedback for an archived or not shareable book")
		}
		if b.OwnerID == requester {
			return apperr.NotPermitted("You cannot give feedback to your own book")
		}
		if err := insertFeedbackTx(ctx, q, f); err != nil {
			return err
		}
		rate, err = refreshRateTx(ctx, q, req.BookID)
		return err
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[INFO] feedback saved id=%d book_id=%d rate=%.1f", f.ID, f.BookID, rate)
	return f.ID, nil
}

func (s *Service) ListByBook(ctx context.Context, bookID, requester int64, p paging.Page) (paging.Response[FeedbackResponse], error) {
	p = p.Normalize()
	var out paging.Response[FeedbackResponse]
	err := s.store.BeginRead(ctx, func(ctx context.Context, q db.DBTX) error {
		if _, err := s.store.getBookStateTx(ctx, q, bookID, false); err != nil {
			return err
		}
		list, total, err := s.store.listByBookTx(ctx, q, bookID, p)
		if err != nil {
			return err
		}
		content := make([]FeedbackResponse, 0, len(list))
		for _, f := range list {
			content = append(content, ToResponse(f, requester))
		}
		out = paging.NewResponse(content, p, total)
		return nil
	})
	return out, err
}

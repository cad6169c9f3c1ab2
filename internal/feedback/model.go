package feedback

import "time"

type Feedback struct {
	ID        int64
	BookID    int64
	UserID    int64
	Note      float64
	Comment   string
	CreatedAt time.Time
}

// 評価対象の本の状態（books から読むだけ）
type bookState struct {
	OwnerID   int64
	Archived  bool
	Shareable bool
}

type CreateFeedbackRequest struct {
	BookID  int64   `json:"book_id" validate:"required,gt=0"`
	Note    float64 `json:"note" validate:"gte=0,lte=5"`
	Comment string  `json:"comment" validate:"required,max=2000"`
}

type FeedbackResponse struct {
	Note        float64 `json:"note"`
	Comment     string  `json:"comment"`
	OwnFeedback bool    `json:"own_feedback"`
}

// ToResponse: own_feedback は保存せず requester と比べて毎回出す
func ToResponse(f Feedback, requester int64) FeedbackResponse {
	return FeedbackResponse{
		Note:        f.Note,
		Comment:     f.Comment,
		OwnFeedback: f.UserID == requester,
	}
}

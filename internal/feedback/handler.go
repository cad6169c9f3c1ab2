package feedback

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"booknet-backend/internal/platform/apperr"
	"booknet-backend/internal/platform/auth"
	"booknet-backend/internal/platform/paging"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/feedbacks", h.Save)
	r.GET("/feedbacks/book/:book_id", h.ListByBook)
}

// POST /feedbacks
func (h *Handler) Save(c *gin.Context) {
	uid, ok := auth.CurrentUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Body(apperr.CodeUnauthorized, "unauthenticated"))
		return
	}
	var req CreateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json"))
		return
	}

	id, err := h.svc.Save(c.Request.Context(), uid, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// GET /feedbacks/book/:book_id
func (h *Handler) ListByBook(c *gin.Context) {
	uid, ok := auth.CurrentUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Body(apperr.CodeUnauthorized, "unauthenticated"))
		return
	}
	bookID, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil || bookID <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid book_id"))
		return
	}

	res, err := h.svc.ListByBook(c.Request.Context(), bookID, uid, paging.FromQuery(c))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

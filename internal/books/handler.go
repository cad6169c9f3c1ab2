package books

import (
	"bytes"
	"context"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"booknet-backend/internal/platform/apperr"
	"booknet-backend/internal/platform/auth"
	"booknet-backend/internal/platform/paging"
)

// 表紙画像のアップロード上限
const maxCoverBytes = 5 << 20

type Handler struct{ svc *Service }

// RegisterRoutes: /books 配下。RequireAuth の後ろに置くこと。
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// 1. 本リソース
	r.POST("/books", h.CreateBook)
	r.GET("/books", h.ListDisplayable)
	r.GET("/books/owner", h.ListOwned)
	r.GET("/books/owner/export", h.ExportOwned)
	r.GET("/books/detail/:book_id", h.GetBook)
	r.GET("/books/detail/:book_id/cover", h.GetCover)
	r.POST("/books/cover/:book_id", h.UploadCover)

	// 2. 所有者の切り替え操作
	r.PATCH("/books/shareable/:book_id", h.ToggleShareable)
	r.PATCH("/books/archived/:book_id", h.ToggleArchived)

	// 3. 貸出・返却
	r.POST("/books/borrow/:book_id", h.Borrow)
	r.PATCH("/books/return/:book_id", h.Return)
	r.PATCH("/books/return-approval/:book_id", h.ApproveReturn)

	// 4. 貸出一覧
	r.GET("/books/borrowed", h.ListBorrowed)
	r.GET("/books/returned", h.ListReturned)
	r.GET("/books/lent", h.ListLent)
}

// ---------- handlers ----------

// POST /books
func (h *Handler) CreateBook(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid json"))
		return
	}

	id, err := h.svc.CreateBook(c.Request.Context(), uid, req)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.Header("Location", "/api/v1/books/detail/"+strconv.FormatInt(id, 10))
	c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *Handler) GetBook(c *gin.Context) {
	bookID, ok := bookIDParam(c)
	if !ok {
		return
	}
	res, err := h.svc.GetBook(c.Request.Context(), bookID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListDisplayable(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	res, err := h.svc.ListDisplayable(c.Request.Context(), uid, paging.FromQuery(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListOwned(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	res, err := h.svc.ListOwned(c.Request.Context(), uid, paging.FromQuery(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /books/owner/export?encoding=utf-8|shift_jis
func (h *Handler) ExportOwned(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	enc := c.DefaultQuery("encoding", EncodingUTF8)
	contentType := "text/csv; charset=utf-8"
	switch strings.ToLower(enc) {
	case EncodingShiftJIS, "sjis", "cp932":
		contentType = "text/csv; charset=Shift_JIS"
	}

	// 途中で失敗してもヘッダ送信後はステータスを変えられないので、先にバッファへ書く
	var buf bytes.Buffer
	if err := h.svc.ExportOwned(c.Request.Context(), uid, enc, &buf); err != nil {
		writeErr(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="books.csv"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *Handler) ListBorrowed(c *gin.Context) {
	h.listLoans(c, h.svc.ListBorrowed)
}

func (h *Handler) ListReturned(c *gin.Context) {
	h.listLoans(c, h.svc.ListReturned)
}

func (h *Handler) ListLent(c *gin.Context) {
	h.listLoans(c, h.svc.ListLent)
}

func (h *Handler) Borrow(c *gin.Context) {
	h.operate(c, http.StatusCreated, h.svc.Borrow)
}

func (h *Handler) Return(c *gin.Context) {
	h.operate(c, http.StatusOK, h.svc.Return)
}

func (h *Handler) ApproveReturn(c *gin.Context) {
	h.operate(c, http.StatusOK, h.svc.ApproveReturn)
}

func (h *Handler) ToggleShareable(c *gin.Context) {
	h.operate(c, http.StatusOK, h.svc.ToggleShareable)
}

func (h *Handler) ToggleArchived(c *gin.Context) {
	h.operate(c, http.StatusOK, h.svc.ToggleArchived)
}

// POST /books/cover/:book_id (multipart, field "file")
func (h *Handler) UploadCover(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	bookID, ok := bookIDParam(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "file is required"))
		return
	}
	if fh.Size > maxCoverBytes {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "file too large"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeErr(c, err)
		return
	}
	defer f.Close()

	id, err := h.svc.UploadCover(c.Request.Context(), bookID, uid, fh.Filename, f)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, IDResponse{ID: id})
}

func (h *Handler) GetCover(c *gin.Context) {
	bookID, ok := bookIDParam(c)
	if !ok {
		return
	}
	rc, ref, err := h.svc.OpenCover(c.Request.Context(), bookID)
	if err != nil {
		writeErr(c, err)
		return
	}
	defer rc.Close()

	ct := mime.TypeByExtension(filepath.Ext(ref))
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, ct, rc, nil)
}

// ---------- helpers ----------

func (h *Handler) operate(c *gin.Context, status int, op func(ctx context.Context, bookID, requester int64) (int64, error)) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	bookID, ok := bookIDParam(c)
	if !ok {
		return
	}
	id, err := op(c.Request.Context(), bookID, uid)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(status, IDResponse{ID: id})
}

func (h *Handler) listLoans(c *gin.Context, list func(ctx context.Context, uid int64, p paging.Page) (paging.Response[BorrowedBookResponse], error)) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	res, err := list(c.Request.Context(), uid, paging.FromQuery(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// requester は検証済みの利用者ID。無ければ 401 を書いて false。
func requester(c *gin.Context) (int64, bool) {
	uid, ok := auth.CurrentUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Body(apperr.CodeUnauthorized, "unauthenticated"))
		return 0, false
	}
	return uid, true
}

func bookIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidArgument, "invalid book_id"))
		return 0, false
	}
	return id, true
}

func writeErr(c *gin.Context, err error) {
	if apperr.CodeOf(err) == apperr.CodeInternal {
		log.Printf("[ERROR] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(apperr.ToHTTPStatus(err), apperr.BodyFrom(err))
}

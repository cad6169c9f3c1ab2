package feedback

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booknet-backend/internal/platform/auth"
	"booknet-backend/internal/platform/db"
	"booknet-backend/internal/platform/db/dbtest"
	"booknet-backend/internal/platform/paging"
)

func Test_Handler_SaveAndList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("feedback-secret")
	conn := dbtest.Open(t)
	owner := dbtest.CreateUser(t, conn, "Olivia", "Owner")
	reader := dbtest.CreateUser(t, conn, "Alice", "Reader")
	bookID := insertBook(t, conn, owner, true, false)

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1", auth.RequireAuth(secret)), NewService(NewStore(conn, db.SQLite)))

	call := func(method, path string, uid int64, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		tok, err := auth.IssueToken(secret, uid, "", time.Hour, time.Now())
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := call(http.MethodPost, "/api/v1/feedbacks", reader, CreateFeedbackRequest{BookID: bookID, Note: 4, Comment: "nice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(http.MethodPost, "/api/v1/feedbacks", owner, CreateFeedbackRequest{BookID: bookID, Note: 5, Comment: "mine"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(http.MethodGet, "/api/v1/feedbacks/book/"+strconv.FormatInt(bookID, 10), reader, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page paging.Response[FeedbackResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Content, 1)
	assert.True(t, page.Content[0].OwnFeedback)

	w = call(http.MethodGet, "/api/v1/feedbacks/book/x", reader, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

package books

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"booknet-backend/internal/platform/apperr"
	"booknet-backend/internal/platform/paging"
)

func newTestService(t *testing.T) (*Service, *fixture) {
	t.Helper()
	f := newFixture(t)
	return NewService(f.store, NewLocalCoverStorage(t.TempDir())), f
}

func Test_Service_CreateBook(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateBook(ctx, f.owner, CreateBookRequest{
		Title:      "  Clean Code ",
		AuthorName: "Robert C. Martin",
		ISBN:       "９７８-０１３４１９０４４０",
		Synopsis:   "A handbook of agile software craftsmanship",
		Shareable:  true,
	})
	require.NoError(t, err)

	got, err := svc.GetBook(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Clean Code", got.Title)
	assert.Equal(t, "9780134190440", got.ISBN)
	assert.Equal(t, "Olivia Owner", got.Owner)
	assert.True(t, got.Shareable)
	assert.False(t, got.Archived)
	assert.False(t, got.IsBorrowed)
	assert.Zero(t, got.Rate)

	_, err = svc.GetBook(ctx, id+100)
	assertCode(t, err, apperr.CodeNotFound, "")
}

func Test_Service_CreateBook_Validation(t *testing.T) {
	svc, f := newTestService(t)
	valid := CreateBookRequest{Title: "t", AuthorName: "a", ISBN: "9781098100131", Synopsis: "s"}

	tests := []struct {
		name   string
		mutate func(r *CreateBookRequest)
	}{
		{name: "missing_title", mutate: func(r *CreateBookRequest) { r.Title = "   " }},
		{name: "missing_author", mutate: func(r *CreateBookRequest) { r.AuthorName = "" }},
		{name: "short_isbn", mutate: func(r *CreateBookRequest) { r.ISBN = "12345" }},
		{name: "bad_checksum", mutate: func(r *CreateBookRequest) { r.ISBN = "9781098100132" }},
		{name: "missing_synopsis", mutate: func(r *CreateBookRequest) { r.Synopsis = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := svc.CreateBook(context.Background(), f.owner, req)
			assertCode(t, err, apperr.CodeInvalidArgument, "")
		})
	}

	_, err := svc.CreateBook(context.Background(), f.owner, valid)
	assert.NoError(t, err)
}

func Test_Service_Listings(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()
	lent := f.addBook(t, f.owner, "lent", true, false)
	f.addBook(t, f.owner, "idle", true, false)

	_, err := svc.Borrow(ctx, lent, f.borrower)
	require.NoError(t, err)

	page, err := svc.ListDisplayable(ctx, f.other, paging.Page{Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Content, 2)
	assert.Equal(t, int64(2), page.TotalElements)
	byTitle := map[string]BookResponse{}
	for _, b := range page.Content {
		byTitle[b.Title] = b
	}
	assert.True(t, byTitle["lent"].IsBorrowed)
	assert.False(t, byTitle["idle"].IsBorrowed)

	owned, err := svc.ListOwned(ctx, f.owner, paging.Page{Size: 1})
	require.NoError(t, err)
	assert.Len(t, owned.Content, 1)
	assert.Equal(t, 2, owned.TotalPages)
	assert.True(t, owned.First)
	assert.False(t, owned.Last)

	borrowed, err := svc.ListBorrowed(ctx, f.borrower, paging.Page{})
	require.NoError(t, err)
	require.Len(t, borrowed.Content, 1)
	assert.Equal(t, "Olivia Owner", borrowed.Content[0].OwnerName)
	assert.Equal(t, "Victor Borrower", borrowed.Content[0].BorrowerName)

	lentPage, err := svc.ListLent(ctx, f.owner, paging.Page{})
	require.NoError(t, err)
	assert.Len(t, lentPage.Content, 1)

	returned, err := svc.ListReturned(ctx, f.owner, paging.Page{})
	require.NoError(t, err)
	assert.Empty(t, returned.Content)

	_, err = svc.Return(ctx, lent, f.borrower)
	require.NoError(t, err)
	returned, err = svc.ListReturned(ctx, f.owner, paging.Page{})
	require.NoError(t, err)
	require.Len(t, returned.Content, 1)
	assert.True(t, returned.Content[0].Returned)
	assert.False(t, returned.Content[0].ReturnApproved)
}

func Test_Service_Cover(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()
	bookID := f.addBook(t, f.owner, "with cover", true, false)

	_, _, err := svc.OpenCover(ctx, bookID)
	assertCode(t, err, apperr.CodeNotFound, "")

	_, err = svc.UploadCover(ctx, bookID, f.borrower, "cover.png", strings.NewReader("png"))
	assertCode(t, err, apperr.CodeOperationNotPermitted, msgNotOwnerUpdate)

	_, err = svc.UploadCover(ctx, bookID, f.owner, "cover.exe", strings.NewReader("nope"))
	assertCode(t, err, apperr.CodeInvalidArgument, "")

	id, err := svc.UploadCover(ctx, bookID, f.owner, "Cover.PNG", strings.NewReader("\x89PNG-bytes"))
	require.NoError(t, err)
	assert.Equal(t, bookID, id)

	rc, ref, err := svc.OpenCover(ctx, bookID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG-bytes", string(body))
	assert.True(t, strings.HasPrefix(ref, "users/"))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	got, err := svc.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/books/detail/"+itoa(bookID)+"/cover", got.Cover)
}

func Test_LocalCoverStorage_RejectsEscapingRefs(t *testing.T) {
	s := NewLocalCoverStorage(t.TempDir())
	_, err := s.Open(context.Background(), "../../etc/passwd")
	assertCode(t, err, apperr.CodeNotFound, "")
}

func Test_Service_ExportOwned(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()
	f.addBook(t, f.owner, "吾輩は猫である", true, false)
	f.addBook(t, f.owner, "Archived, with comma", false, true)
	f.addBook(t, f.other, "not exported", true, false)

	readAll := func(r io.Reader) [][]string {
		records, err := csv.NewReader(r).ReadAll()
		require.NoError(t, err)
		return records
	}

	var utf8Buf bytes.Buffer
	require.NoError(t, svc.ExportOwned(ctx, f.owner, EncodingUTF8, &utf8Buf))
	records := readAll(&utf8Buf)
	require.Len(t, records, 3)
	assert.Equal(t, exportHeader, records[0])
	titles := []string{records[1][1], records[2][1]}
	assert.ElementsMatch(t, []string{"吾輩は猫である", "Archived, with comma"}, titles)

	var sjisBuf bytes.Buffer
	require.NoError(t, svc.ExportOwned(ctx, f.owner, EncodingShiftJIS, &sjisBuf))
	assert.NotContains(t, sjisBuf.String(), "吾輩は猫である")
	decoded := readAll(transform.NewReader(&sjisBuf, japanese.ShiftJIS.NewDecoder()))
	require.Len(t, decoded, 3)
	assert.Contains(t, []string{decoded[1][1], decoded[2][1]}, "吾輩は猫である")

	err := svc.ExportOwned(ctx, f.owner, "latin1", io.Discard)
	assertCode(t, err, apperr.CodeInvalidArgument, "")
}

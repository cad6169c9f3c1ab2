package books

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	ulid "github.com/oklog/ulid/v2"

	"booknet-backend/internal/platform/apperr"
)

// CoverStorage は表紙画像の保存先。DB には返り値の参照文字列だけを持つ。
type CoverStorage interface {
	Save(ctx context.Context, ownerID int64, filename string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

var allowedCoverExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// LocalCoverStorage: <root>/users/<owner_id>/<ulid>.<ext> に保存する
type LocalCoverStorage struct {
	root string
}

func NewLocalCoverStorage(root string) *LocalCoverStorage {
	return &LocalCoverStorage{root: root}
}

func (s *LocalCoverStorage) Save(ctx context.Context, ownerID int64, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedCoverExt[ext] {
		return "", apperr.Invalid("unsupported cover image type: " + ext)
	}

	ref := filepath.ToSlash(filepath.Join("users", fmt.Sprint(ownerID), ulid.Make().String()+ext))
	full := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", err
	}
	return ref, nil
}

func (s *LocalCoverStorage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	p := filepath.FromSlash(ref)
	// 参照文字列は DB 由来だが root の外は読まない
	if !filepath.IsLocal(p) {
		return nil, apperr.NotFound("cover not found")
	}
	f, err := os.Open(filepath.Join(s.root, p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("cover not found")
		}
		return nil, err
	}
	return f, nil
}

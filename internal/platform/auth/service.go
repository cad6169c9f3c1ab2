package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"booknet-backend/internal/platform/apperr"
)

const DefaultTokenTTL = 24 * time.Hour

type RegisterRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=72"` // bcrypt は72バイトまで
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Service struct {
	store    AccountStore
	secret   []byte
	ttl      time.Duration
	validate *validator.Validate
	now      func() time.Time
}

func NewService(conn *sql.DB, secret []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		store:    NewStore(conn),
		secret:   secret,
		ttl:      ttl,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Secret() []byte { return s.secret }

func (s *Service) Register(ctx context.Context, req RegisterRequest) (int64, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := s.validate.Struct(req); err != nil {
		return 0, invalid(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	acct := &Account{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hash),
		Enabled:      true,
		CreatedAt:    s.now(),
	}
	if err := s.store.Create(ctx, acct); err != nil {
		return 0, err
	}
	log.Printf("[INFO] user registered id=%d", acct.ID)
	return acct.ID, nil
}

// Login は成功時に署名済みトークンを返す。失敗理由はまとめて UNAUTHORIZED。
func (s *Service) Login(ctx context.Context, req LoginRequest) (string, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return "", invalid(err)
	}

	acct, err := s.store.GetByEmail(ctx, req.Email)
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", apperr.Unauthorized("authentication failed")
	}
	if !acct.Enabled {
		return "", apperr.Unauthorized("account disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)); err != nil {
		return "", apperr.Unauthorized("authentication failed")
	}

	return IssueToken(s.secret, acct.ID, acct.FullName(), s.ttl, s.now())
}

// IssueToken は HS256 のアクセストークンを作る。booknetctl からも使う。
func IssueToken(secret []byte, userID int64, fullName string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       strconv.FormatInt(userID, 10),
		"full_name": fullName,
		"jti":       uuid.NewString(),
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}

func invalid(err error) error {
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

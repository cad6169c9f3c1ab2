package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	mysql "github.com/go-sql-driver/mysql"
	sqlite3 "github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"

	"booknet-backend/internal/platform/apperr"
)

// MySQL のエラー番号
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// Classify はドライバのエラーを apperr のコードへ寄せる。
// 既に APIError のものはそのまま、分類できないものは op を付けてラップして返す（INTERNAL 扱い）。
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var api *apperr.APIError
	if errors.As(err, &api) {
		return err
	}
	if IsConflict(err) {
		return apperr.Conflict(op + ": concurrent update, please retry")
	}
	if IsUnavailable(err) {
		return apperr.Unavailable(op + ": database unavailable")
	}
	return pkgerrors.Wrap(err, op)
}

func IsConflict(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDuplicateEntry, mysqlLockWaitTimeout, mysqlDeadlock:
			return true
		}
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return true
		case sqlite3.ErrConstraint:
			return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
				se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
		}
	}
	return false
}

func IsUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB:
			return true
		}
	}
	return false
}

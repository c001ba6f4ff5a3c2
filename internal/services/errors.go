package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
// Foreign key failures are not uniqueness violations.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		return pgErr.Code == "23505"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil {
		return myErr.Number == 1062
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "foreign key") {
		return false
	}
	return strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate")
}

package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
)

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique-constraint failure,
// whether gorm translated it, postgres reported it, or sqlite did.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if pg, ok := pkgerrors.PostgresDetailOf(err); ok {
		return pg.Code == uniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

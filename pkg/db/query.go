package db

import "gorm.io/gorm"

// First loads the first row q selects, or nil when none matches.
func First[T any](q *gorm.DB, conds ...any) (*T, error) {
	var row T
	if err := q.First(&row, conds...).Error; err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

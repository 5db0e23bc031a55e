// Package option holds composable gorm query options.
package option

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/invoicekits/invoicekits/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination orders by id descending and fetches one row more than the
// page size so callers can detect a following page. Snowflake ids grow with
// time, so the cursor id alone is enough to resume.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err != nil {
				_ = db.AddError(fmt.Errorf("invalid page token: %w", err))
				return db
			}
			id, err := snowflake.ParseString(cursor.ID)
			if err != nil {
				_ = db.AddError(fmt.Errorf("invalid page token: %w", err))
				return db
			}
			db = db.Where("id < ?", id)
		}
		return db.Order("id desc").Limit(page.Limit() + 1)
	})
}

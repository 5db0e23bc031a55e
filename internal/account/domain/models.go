package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TierFree         = "free"
	TierStarter      = "starter"
	TierProfessional = "professional"
	TierBusiness     = "business"
)

// Account tracks a company's plan tier and invoice usage for the current
// calendar month.
type Account struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID          snowflake.ID `gorm:"not null;uniqueIndex" json:"company_id"`
	Tier               string       `gorm:"type:varchar(20);not null;default:'free'" json:"tier"`
	InvoicesThisPeriod int          `gorm:"not null;default:0" json:"invoices_this_period"`
	PeriodStart        time.Time    `gorm:"not null" json:"period_start"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// PeriodStartFor returns the first instant of the month containing t, in UTC.
func PeriodStartFor(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NeedsReset reports whether the stored period began in an earlier month.
func (a *Account) NeedsReset(now time.Time) bool {
	return a.PeriodStart.Before(PeriodStartFor(now))
}

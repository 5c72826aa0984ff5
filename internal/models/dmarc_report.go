package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/internal/utils"
)

type DMARCReport struct {
	ID           string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Domain       string    `gorm:"column:domain;type:varchar(255);index" json:"domain"`
	Reporter     string    `gorm:"column:reporter;type:varchar(255)" json:"reporter"`
	ReportStart  time.Time `gorm:"column:report_start;type:timestamp" json:"reportStart"`
	ReportEnd    time.Time `gorm:"column:report_end;type:timestamp" json:"reportEnd"`
	MessageCount int       `gorm:"column:message_count;type:integer" json:"messageCount"`
	SPFPass      int       `gorm:"column:spf_pass;type:integer" json:"spfPass"`
	DKIMPass     int       `gorm:"column:dkim_pass;type:integer" json:"dkimPass"`
	DMARCPass    int       `gorm:"column:dmarc_pass;type:integer" json:"dmarcPass"`
	Data         string    `gorm:"column:data;type:text" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (DMARCReport) TableName() string {
	return "dmarc_reports"
}

func (r *DMARCReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("dmarc", 16)
	}
	return nil
}

// DomainReputation is one blacklist and domain-age scan of a sending domain.
type DomainReputation struct {
	ID                  string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Domain              string    `gorm:"column:domain;type:varchar(255);index" json:"domain"`
	DomainAgeDays       int       `gorm:"column:domain_age_days;type:integer" json:"domainAgeDays"`
	DomainAgePenalty    int       `gorm:"column:domain_age_penalty;type:integer" json:"domainAgePenalty"`
	BlacklistPenaltyPct int       `gorm:"column:blacklist_penalty_pct;type:integer" json:"blacklistPenaltyPct"`
	MajorListings       int       `gorm:"column:major_listings;type:integer" json:"majorListings"`
	MinorListings       int       `gorm:"column:minor_listings;type:integer" json:"minorListings"`
	SpamTrapListings    int       `gorm:"column:spam_trap_listings;type:integer" json:"spamTrapListings"`
	CreatedAt           time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (DomainReputation) TableName() string {
	return "domain_reputations"
}

func (r *DomainReputation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("rep", 16)
	}
	return nil
}

func (r *DomainReputation) Blacklisted() bool {
	return r.MajorListings > 0 || r.SpamTrapListings > 0
}

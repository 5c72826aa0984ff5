package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/utils"
)

type DomainRecord struct {
	ID     string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Domain string `gorm:"column:domain;type:varchar(255);uniqueIndex;not null" json:"domain"`

	SpfStatus            enum.VerificationStatus `gorm:"column:spf_status;type:varchar(20);not null;default:not_checked" json:"spfStatus"`
	SpfCurrentRecord     string                  `gorm:"column:spf_current_record;type:text" json:"spfCurrentRecord"`
	SpfRecommendedRecord string                  `gorm:"column:spf_recommended_record;type:text" json:"spfRecommendedRecord"`

	DkimStatus            enum.VerificationStatus `gorm:"column:dkim_status;type:varchar(20);not null;default:not_checked" json:"dkimStatus"`
	DkimSelector          string                  `gorm:"column:dkim_selector;type:varchar(100)" json:"dkimSelector"`
	DkimCurrentRecord     string                  `gorm:"column:dkim_current_record;type:text" json:"dkimCurrentRecord"`
	DkimRecommendedRecord string                  `gorm:"column:dkim_recommended_record;type:text" json:"dkimRecommendedRecord"`

	DmarcStatus            enum.VerificationStatus `gorm:"column:dmarc_status;type:varchar(20);not null;default:not_checked" json:"dmarcStatus"`
	DmarcCurrentRecord     string                  `gorm:"column:dmarc_current_record;type:text" json:"dmarcCurrentRecord"`
	DmarcRecommendedRecord string                  `gorm:"column:dmarc_recommended_record;type:text" json:"dmarcRecommendedRecord"`

	LastChecked *time.Time `gorm:"column:last_checked;type:timestamp" json:"lastChecked,omitempty"`
	LastError   string     `gorm:"column:last_error;type:text" json:"lastError,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (DomainRecord) TableName() string {
	return "domain_records"
}

func (d *DomainRecord) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = utils.GenerateNanoIDWithPrefix("dom", 16)
	}
	return nil
}

func (d *DomainRecord) Status(recordType enum.DNSRecordType) enum.VerificationStatus {
	switch recordType {
	case enum.RecordSPF:
		return d.SpfStatus
	case enum.RecordDKIM:
		return d.DkimStatus
	case enum.RecordDMARC:
		return d.DmarcStatus
	}
	return ""
}

func (d *DomainRecord) SetStatus(recordType enum.DNSRecordType, status enum.VerificationStatus) {
	switch recordType {
	case enum.RecordSPF:
		d.SpfStatus = status
	case enum.RecordDKIM:
		d.DkimStatus = status
	case enum.RecordDMARC:
		d.DmarcStatus = status
	}
}

func (d *DomainRecord) SetRecords(recordType enum.DNSRecordType, current, recommended string) {
	switch recordType {
	case enum.RecordSPF:
		d.SpfCurrentRecord, d.SpfRecommendedRecord = current, recommended
	case enum.RecordDKIM:
		d.DkimCurrentRecord, d.DkimRecommendedRecord = current, recommended
	case enum.RecordDMARC:
		d.DmarcCurrentRecord, d.DmarcRecommendedRecord = current, recommended
	}
}

// Authenticated is true when all three records verified.
func (d *DomainRecord) Authenticated() bool {
	return d.SpfStatus == enum.VerificationValid &&
		d.DkimStatus == enum.VerificationValid &&
		d.DmarcStatus == enum.VerificationValid
}

package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/internal/utils"
)

type SpamWord struct {
	ID        string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Word      string    `gorm:"column:word;type:varchar(255);uniqueIndex;not null" json:"word"`
	Category  string    `gorm:"column:category;type:varchar(50);not null" json:"category"`
	Score     int       `gorm:"column:score;type:integer;not null;check:chk_spam_words_score,score BETWEEN 1 AND 10" json:"score"`
	Active    bool      `gorm:"column:active;type:boolean;not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (SpamWord) TableName() string {
	return "spam_words"
}

func (w *SpamWord) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = utils.GenerateNanoIDWithPrefix("sw", 16)
	}
	return nil
}

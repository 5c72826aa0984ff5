package repository

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/internal/database"
	"github.com/customeros/mailgovernor/internal/models"
)

type Repositories struct {
	SendingAccountRepository  SendingAccountRepository
	DomainRecordRepository    DomainRecordRepository
	DeliveryEventRepository   DeliveryEventRepository
	SentEmailRepository       SentEmailRepository
	SpamWordRepository        SpamWordRepository
	ABTestRepository          ABTestRepository
	ReputationAlertRepository ReputationAlertRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		SendingAccountRepository:  NewSendingAccountRepository(db),
		DomainRecordRepository:    NewDomainRecordRepository(db),
		DeliveryEventRepository:   NewDeliveryEventRepository(db),
		SentEmailRepository:       NewSentEmailRepository(db),
		SpamWordRepository:        NewSpamWordRepository(db),
		ABTestRepository:          NewABTestRepository(db),
		ReputationAlertRepository: NewReputationAlertRepository(db),
	}
}

const createOpenAlertIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_reputation_alerts_open
ON reputation_alerts (account_id, alert_type) WHERE is_resolved = false`

func MigrateDB(dbConfig *database.DatabaseConfig, governorDB *gorm.DB) error {
	db, err := governorDB.DB()
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(5)

	err = governorDB.AutoMigrate(
		&models.SendingAccount{},
		&models.DomainRecord{},
		&models.DMARCReport{},
		&models.DomainReputation{},
		&models.SentEmail{},
		&models.DeliveryEvent{},
		&models.SpamWord{},
		&models.ABTest{},
		&models.ABTestVariant{},
		&models.ReputationAlert{},
	)
	if err == nil {
		err = governorDB.Exec(createOpenAlertIndexSQL).Error
		if err != nil {
			err = errors.Wrap(err, "failed to create open alert index")
		}
	}

	db.SetMaxIdleConns(dbConfig.MaxIdleConn)
	db.SetMaxOpenConns(dbConfig.MaxConn)
	db.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}

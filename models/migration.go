package models

import (
	"log"

	"github.com/byronwade/Thorbis-sub040/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Company{}, &CompanyMember{}, &CompanyProcessorConfig{},
		&User{},
		&Payment{}, &Refund{},
		&OfflinePaymentQueueRecord{},
		&AuditLog{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

package models

import (
	"log"

	"github.com/mmdatafocus/leakage_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Order{}, &OrderItem{}, &Product{}, &Customer{},
		&LeakageRun{}, &ValidationIssue{},
		&ProductLeakage{}, &ChannelDiscountAbuse{}, &CustomerRiskProfile{}, &CustomerLeakageRanked{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

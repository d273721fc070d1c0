package models

import (
	"github.com/mmdatafocus/reviews_backend/config"
)

func MigrateTable() error {
	db := config.GetDB()

	return db.AutoMigrate(
		&Account{}, &Integration{},
		&ReviewRequest{},
		&WebhookEvent{},
		&SendJob{}, &SendJobDead{},
	)
}

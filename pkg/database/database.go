package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/grovia/settlement/pkg/logger"
)

var DB *gorm.DB

func Connect(dbUrl string) {
	var err error
	DB, err = gorm.Open(postgres.Open(dbUrl), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Fatal("Failed to connect to database", logger.WithError(err))
	}
	logger.Info("Connected to database")
}

func Migrate(models ...interface{}) {
	if err := DB.AutoMigrate(models...); err != nil {
		logger.Fatal("Failed to run migrations", logger.WithError(err))
	}
}

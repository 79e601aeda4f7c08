package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	models "github.com/herald-ai/herald/dbmodels"
)

// Connect opens the postgres database and migrates the engine entities.
func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Connection{},
		&models.Conversation{},
		&models.Message{},
		&models.AgentInstruction{},
		&models.AgentTask{},
		&models.VectorEmbedding{},
		&models.ProcessedEvent{},
	); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return gdb, nil
}

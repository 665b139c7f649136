package db

import (
	"time"

	"aibbs/internal/config"
	"aibbs/internal/models"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 按配置连接数据库
func Open(cfg config.Settings) (*gorm.DB, error) {
	gormConfig := &gorm.Config{}
	if cfg.Env == "development" {
		gormConfig.Logger = logger.Default.LogMode(logger.Warn)
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Error)
	}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			// 未设置时使用本地开发默认值
			dsn = "host=localhost user=postgres password=postgres dbname=aibbs port=5432 sslmode=disable TimeZone=UTC"
		}
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DBPath + "?_busy_timeout=5000&_foreign_keys=on")
	default:
		return nil, errors.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get database connection")
	}
	if cfg.DBDriver == "postgres" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite 只允许单个写入者
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// Migrate 创建或更新版面和 AI 相关表
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Post{},
		&models.BannedIP{},
		// AI 相关模型
		&models.AIEvent{},
		&models.AuditLog{},
		&models.AIIncident{},
		&models.AIState{},
	)
	return errors.Wrap(err, "failed to migrate database")
}

package database

import (
	"cad_practice_backend/internal/config"
	"cad_practice_backend/internal/model"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig, migrate bool) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if !migrate {
		return db, nil
	}

	err = db.AutoMigrate(
		&model.AuthUser{},
		&model.Reviewer{},
		&model.AdminAccount{},
		&model.Question{},
		&model.QuestionStep{},
		&model.CompletionRecord{},
		&model.FailureRecord{},
		&model.CaptureRecord{},
		&model.CapturePartStudio{},
		&model.CaptureAssembly{},
		&model.CaptureStep{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// Seed a default admin account on first start so question management
	// is reachable before any reviewer is promoted
	var count int64
	db.Model(&model.AdminAccount{}).Count(&count)
	if count == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte("ChangeMe-123"), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		db.Create(&model.AdminAccount{
			Username:     "admin",
			PasswordHash: string(hash),
			Role:         model.AdminRoleAdmin,
		})
		log.Println("Seeded default admin account, change its password immediately")
	}

	return db, nil
}

package mysql

import (
	"log"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/nice20235/slippers/internal/config"
	"github.com/nice20235/slippers/internal/datamodels/order"
	"github.com/nice20235/slippers/internal/datamodels/payment"
	"github.com/nice20235/slippers/internal/datamodels/refund"
	"github.com/nice20235/slippers/internal/datamodels/slipper"
	"github.com/nice20235/slippers/internal/datamodels/user"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Init 初始化全局 GORM 实例并自动迁移表结构
func Init(cfg *config.MySQLConfig) *gorm.DB {
	once.Do(func() {
		var err error
		db, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{TranslateError: true})
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}

		if err = AutoMigrate(db); err != nil {
			log.Fatalf("auto migrate failed: %v", err)
		}
	})
	return db
}

// AutoMigrate 迁移本服务拥有的全部表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&user.User{},
		&slipper.Slipper{},
		&order.Order{},
		&order.OrderItem{},
		&payment.Payment{},
		&refund.Request{},
		&refund.Refund{},
	)
}

package persistence

import (
	"time"

	"atelier/internal/pkg/bootstrap"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenMysql 按配置建立 GORM 连接并迁移商城相关的表。
func OpenMysql(cfg bootstrap.MysqlConfig) (*gorm.DB, error) {
	dsnCfg := mysql.NewConfig()
	dsnCfg.User = cfg.User
	dsnCfg.Passwd = cfg.Password
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = cfg.Addr
	dsnCfg.DBName = cfg.Database
	dsnCfg.ParseTime = true
	dsnCfg.Loc = time.Local

	db, err := gorm.Open(gormmysql.Open(dsnCfg.FormatDSN()), &gorm.Config{
		// 把驱动错误翻译成 gorm.ErrDuplicatedKey 等统一错误
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connect mysql %s/%s", cfg.Addr, cfg.Database)
	}

	if err := db.AutoMigrate(
		&InventoryItemModel{},
		&OrderModel{},
		&OrderItemModel{},
		&OrderTrackingModel{},
		&ReturnRequestModel{},
	); err != nil {
		return nil, errors.Wrap(err, "auto migrate commerce tables")
	}
	return db, nil
}

package db

import (
	"time"

	"github.com/smallbiznis/tarifa/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Open builds the gorm connection from application configuration.
func Open(cfg config.Config) (*gorm.DB, error) {
	dialect, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialect, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	if cfg.DB.MaxIdleConn > 0 {
		sqldb.SetMaxIdleConns(cfg.DB.MaxIdleConn)
	}
	if cfg.DB.MaxOpenConn > 0 {
		sqldb.SetMaxOpenConns(cfg.DB.MaxOpenConn)
	}
	if cfg.DB.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(time.Duration(cfg.DB.ConnMaxLifetime) * time.Second)
	}
	if cfg.DB.ConnMaxIdleTime > 0 {
		sqldb.SetConnMaxIdleTime(time.Duration(cfg.DB.ConnMaxIdleTime) * time.Second)
	}

	return gdb, nil
}

// Module wires the database connection.
var Module = fx.Module("db",
	fx.Provide(Open),
)

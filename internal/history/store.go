package history

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"chaser/internal/strategy"
)

// Config describes the PostgreSQL connection for trade history.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (c Config) dsn() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := &url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", host, port),
		RawQuery: "sslmode=" + sslMode,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.Database != "" {
		u.Path = "/" + c.Database
	}
	return u.String()
}

// TradeRow is the persisted form of a completed cycle.
type TradeRow struct {
	ID         uint   `gorm:"primaryKey"`
	Symbol     string `gorm:"index"`
	Direction  string
	EntryPrice float64
	ExitPrice  float64
	Qty        float64
	PnlPct     float64
	Pnl        float64
	Step       int
	Win        bool
	OpenedAt   time.Time
	ClosedAt   time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// TableName pins the table name.
func (TradeRow) TableName() string {
	return "trades"
}

// Store persists completed trades. It satisfies strategy.TradeRecorder.
type Store struct {
	db *gorm.DB
}

// Open connects and migrates the trades table.
func Open(cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&TradeRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate trades")
	}
	return &Store{db: db}, nil
}

// Record inserts one completed trade.
func (s *Store) Record(ctx context.Context, trade strategy.Trade) error {
	row := TradeRow{
		Symbol:     trade.Symbol,
		Direction:  trade.Direction,
		EntryPrice: trade.EntryPrice,
		ExitPrice:  trade.ExitPrice,
		Qty:        trade.Qty,
		PnlPct:     trade.PnlPct,
		Pnl:        trade.Pnl,
		Step:       trade.Step,
		Win:        trade.Win,
		OpenedAt:   trade.OpenedAt,
		ClosedAt:   trade.ClosedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "insert trade")
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

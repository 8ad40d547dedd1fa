package postgres

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Config struct {
	Host      string
	Port      string
	Username  string
	Password  string
	DBName    string
	SSLMode   string
	AccountID string
}

func NewConfigFromEnv() *Config {
	return &Config{
		Host:      os.Getenv("POSTGRES_HOST"),
		Port:      os.Getenv("POSTGRES_PORT"),
		Username:  os.Getenv("POSTGRES_USERNAME"),
		Password:  os.Getenv("POSTGRES_PASSWORD"),
		DBName:    os.Getenv("POSTGRES_DB_NAME"),
		SSLMode:   os.Getenv("POSTGRES_SSL_MODE"),
		AccountID: os.Getenv("TRACKER_ACCOUNT_ID"),
	}
}

func (c *Config) Setup() *Config {
	const (
		defaultHost      = "localhost"
		defaultPort      = "5432"
		defaultUsername  = "postgres"
		defaultPassword  = "postgres"
		defaultDBName    = "investracker"
		defaultSSLMode   = "disable"
		defaultAccountID = "default"
	)

	c.Host = cmp.Or(c.Host, defaultHost)
	c.Port = cmp.Or(c.Port, defaultPort)
	if _, err := strconv.Atoi(c.Port); err != nil {
		c.Port = defaultPort
	}
	c.Username = cmp.Or(c.Username, defaultUsername)
	c.Password = cmp.Or(c.Password, defaultPassword)
	c.DBName = cmp.Or(c.DBName, defaultDBName)
	c.SSLMode = cmp.Or(c.SSLMode, defaultSSLMode)
	c.AccountID = cmp.Or(c.AccountID, defaultAccountID)

	return c
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.DBName, c.Password, c.SSLMode,
	)
}

// String is safe to log.
func (c *Config) String() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s sslmode=%s account=%s",
		c.Host, c.Port, c.Username, c.DBName, c.SSLMode, c.AccountID,
	)
}

func NewDB(ctx context.Context, cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: can't connect to postgres", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

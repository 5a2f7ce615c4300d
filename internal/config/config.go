package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	MongoURI              string
	MongoDatabase         string
	SnapshotFile          string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	LedgerID              string
	SummaryTTLSeconds     int
	AuthSecret            string
	AccessTokenTTLMinutes int
	AutosyncSeconds       int
	OpeningMainCash       decimal.Decimal
}

// Load reads configuration from the environment, falling back to an optional
// ledger.yaml in the working directory or /etc/opsledger.
func Load() Config {
	v := viper.New()
	v.SetConfigName("ledger")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/opsledger/")
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origin", "http://127.0.0.1:3000")
	v.SetDefault("mongo_database", "opsledger")
	v.SetDefault("redis_db", 0)
	v.SetDefault("ledger_id", "main")
	v.SetDefault("summary_ttl_seconds", 30)
	v.SetDefault("access_token_ttl_minutes", 480)
	v.SetDefault("autosync_seconds", 0)
	v.SetDefault("opening_main_cash", "0")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("[config] ignoring unreadable config file: %v", err)
		}
	}

	summaryTTL := v.GetInt("summary_ttl_seconds")
	if summaryTTL < 1 {
		summaryTTL = 30
	}
	tokenTTL := v.GetInt("access_token_ttl_minutes")
	if tokenTTL < 1 {
		tokenTTL = 480
	}
	autosync := v.GetInt("autosync_seconds")
	if autosync < 0 {
		autosync = 0
	}
	opening, err := decimal.NewFromString(strings.TrimSpace(v.GetString("opening_main_cash")))
	if err != nil || opening.IsNegative() {
		log.Printf("[config] invalid OPENING_MAIN_CASH %q, using 0", v.GetString("opening_main_cash"))
		opening = decimal.Zero
	}

	return Config{
		Port:                  v.GetString("port"),
		AllowedOrigin:         v.GetString("allowed_origin"),
		DatabaseURL:           strings.TrimSpace(v.GetString("database_url")),
		MongoURI:              strings.TrimSpace(v.GetString("mongo_uri")),
		MongoDatabase:         v.GetString("mongo_database"),
		SnapshotFile:          strings.TrimSpace(v.GetString("snapshot_file")),
		RedisAddr:             strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:         v.GetString("redis_password"),
		RedisDB:               v.GetInt("redis_db"),
		LedgerID:              strings.TrimSpace(v.GetString("ledger_id")),
		SummaryTTLSeconds:     summaryTTL,
		AuthSecret:            strings.TrimSpace(v.GetString("auth_secret")),
		AccessTokenTTLMinutes: tokenTTL,
		AutosyncSeconds:       autosync,
		OpeningMainCash:       opening,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

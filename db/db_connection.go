package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/callummance/koala/guildmodels"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const dbDriverEnvVar string = "KOALA_DB_DRIVER"
const dbDSNEnvVar string = "KOALA_DB_DSN"
const dbDriverDefault string = DriverSQLite
const dbDSNDefault string = "koala.sqlite"
const maxDbPoolConnections int = 20
const baseDbPoolConnections int = 2

//Supported relational drivers
const (
	DriverSQLite  string = "sqlite"
	DriverMySQL   string = "mysql"
	//DriverRethink is served by the rethink package rather than this one
	DriverRethink string = "rethink"
)

//Connection contains a handle to the relational database
type Connection struct {
	session *gorm.DB
}

//ConfiguredDriver returns the database driver named in the environment
func ConfiguredDriver() string {
	driver, exists := os.LookupEnv(dbDriverEnvVar)
	if !exists || driver == "" {
		logrus.Warnf("DB driver was not provided, falling back to default `%v`", dbDriverDefault)
		return dbDriverDefault
	}
	return strings.ToLower(driver)
}

//Init creates a new connection pool for the database described by the relevant environment variables
func Init() (*Connection, error) {
	driver := ConfiguredDriver()
	dsn, exists := os.LookupEnv(dbDSNEnvVar)
	if !exists {
		if driver != DriverSQLite {
			logrus.Errorf("`%v` env variable was not set.", dbDSNEnvVar)
			return nil, fmt.Errorf("`%v` env variable was not set", dbDSNEnvVar)
		}
		logrus.Warnf("DB DSN was not provided, falling back to default `%v`", dbDSNDefault)
		dsn = dbDSNDefault
	}
	return Open(driver, dsn)
}

//Open connects to the database using the named driver and ensures all tables exist
func Open(driver string, dsn string) (*Connection, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(normaliseMySQLDSN(dsn))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	gormLogger := logger.New(
		log.New(logrus.StandardLogger().WriterLevel(logrus.WarnLevel), "", 0),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	session, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		logrus.Errorf("Failed to open %v database because %v.", driver, err)
		return nil, fmt.Errorf("failed to open %v database: %w", driver, err)
	}

	sqlDB, err := session.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(baseDbPoolConnections)
	sqlDB.SetMaxOpenConns(maxDbPoolConnections)

	res := Connection{
		session: session,
	}
	if err := res.CreateTables(); err != nil {
		return nil, err
	}
	return &res, nil
}

//Close cleanly terminates the database connection
func (db *Connection) Close() {
	logrus.Info("Terminating DB connection...")
	sqlDB, err := db.session.DB()
	if err != nil {
		logrus.Warnf("Failed to get database handle whilst closing: %v", err)
		return
	}
	_ = sqlDB.Close()
}

//CreateTables ensures all tables needed exist.
func (db *Connection) CreateTables() error {
	err := db.session.AutoMigrate(
		&guildmodels.DiscordGuild{},
		&guildmodels.ManagedMessage{},
		&guildmodels.EmojiRoleBinding{},
		&guildmodels.GuildRequiredRole{},
	)
	if err != nil {
		logrus.Errorf("Failed to migrate database tables due to error %v", err)
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func normaliseMySQLDSN(dsn string) string {
	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}
	return dsn
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}

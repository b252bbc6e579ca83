package domain

import (
	"fmt"
	"time"
)

// DatabaseDriver names the engine behind a stored connection.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// DatabaseConnection is a reusable database a join side can read from.
// The password lives in the secret store, keyed by connection ID.
type DatabaseConnection struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Driver    DatabaseDriver `json:"driver"`
	Host      string         `json:"host"`     // hostname, file path (sqlite) or mongodb:// URI
	Port      int            `json:"port"`     // 0 uses the driver default
	Database  string         `json:"database"` // empty for sqlite
	Username  string         `json:"username"`
	SSLMode   string         `json:"sslMode"`
	ExtraJSON string         `json:"extraJson"` // driver-specific options
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Validate checks the fields every driver needs.
func (c *DatabaseConnection) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("connection name is required")
	}
	switch c.Driver {
	case DatabaseDriverMySQL, DatabaseDriverPostgres, DatabaseDriverMongoDB, DatabaseDriverSQLite:
	default:
		return fmt.Errorf("unsupported driver: %q", c.Driver)
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// DatabaseConnectionStore manages stored connections.
type DatabaseConnectionStore interface {
	CreateConnection(c *DatabaseConnection) error
	GetConnection(id string) (*DatabaseConnection, error)
	ListConnections() ([]DatabaseConnection, error)
	UpdateConnection(c *DatabaseConnection) error
	DeleteConnection(id string) error
}

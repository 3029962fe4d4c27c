package directory

import (
	"fmt"

	"gorm.io/gorm"
)

// Driver identifiers supported by the credential directory.
const (
	DriverStatic = "static"
	DriverSQLite = "sqlite"
)

// Dependencies captures external handles required by certain drivers.
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// New creates a credential directory based on the provided configuration.
func New(cfg Config, deps Dependencies) (Directory, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverStatic
	}

	switch driver {
	case DriverStatic:
		return NewStatic(cfg)
	case DriverSQLite:
		if deps.SQLiteDB == nil {
			return nil, fmt.Errorf("sqlite driver requires database handle")
		}
		return NewSQLite(deps.SQLiteDB, cfg)
	default:
		return nil, fmt.Errorf("unsupported credential directory driver: %s", driver)
	}
}

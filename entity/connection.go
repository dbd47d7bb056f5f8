package entity

import "gorm.io/gorm"

// Database provider tags. The plan capture path only understands SQL
// providers; anything else is silently skipped.
const (
	ProviderMySQL      = "mysql"
	ProviderMariaDB    = "mariadb"
	ProviderPostgres   = "postgres"
	ProviderCockroach  = "cockroachdb"
	ProviderSQLite     = "sqlite"
	ProviderMSSQL      = "mssql"
	ProviderOracle     = "oracle"
	ProviderClickHouse = "clickhouse"
)

var sqlProviders = map[string]bool{
	ProviderMySQL:      true,
	ProviderMariaDB:    true,
	ProviderPostgres:   true,
	ProviderCockroach:  true,
	ProviderSQLite:     true,
	ProviderMSSQL:      true,
	ProviderOracle:     true,
	ProviderClickHouse: true,
}

// DBConnection describes the database target used for execution plan capture.
// The Dialector must point at the same database the host application queries,
// but the connection opened from it is fully isolated from the host's pool.
type DBConnection struct {
	Provider  string
	Dialector gorm.Dialector
}

// IsSQL reports whether the provider is a recognized SQL dialect that
// supports some form of EXPLAIN.
func (c *DBConnection) IsSQL() bool {
	if c == nil {
		return false
	}
	return sqlProviders[c.Provider]
}

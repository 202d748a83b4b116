package config

// TenantSource selects where the tenant registry is loaded from
type TenantSource string

const (
	TenantSourceStatic TenantSource = "static"
	TenantSourceFile   TenantSource = "file"
	TenantSourceSQLite TenantSource = "sqlite"
	TenantSourceRedis  TenantSource = "redis"
)

// ValidTenantSources lists the accepted tenants.source values
var ValidTenantSources = map[TenantSource]bool{
	TenantSourceStatic: true,
	TenantSourceFile:   true,
	TenantSourceSQLite: true,
	TenantSourceRedis:  true,
}

// ValidLogLevels lists the accepted logging.level values
var ValidLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

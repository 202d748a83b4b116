package config

import (
	"fmt"
	"sort"
	"strings"
)

// FieldError is a single invalid setting
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Fields []FieldError
}

func (e *ValidationErrors) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.Field, f.Message))
	}
	if e.has("tenants.source") {
		sb.WriteString(fmt.Sprintf("\nValid tenant sources: %s\n", validSourcesList()))
	}
	return sb.String()
}

func (e *ValidationErrors) has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func validateTenants(errs *ValidationErrors, t TenantsConfig) {
	if !ValidTenantSources[t.Source] {
		errs.add("tenants.source", fmt.Sprintf("unknown source %q", t.Source))
		return
	}

	switch t.Source {
	case TenantSourceFile:
		if t.File == "" {
			errs.add("tenants.file", "is required for the file source")
		}
	case TenantSourceSQLite:
		if t.SQLite == "" {
			errs.add("tenants.sqlite", "is required for the sqlite source")
		}
	case TenantSourceRedis:
		if t.Redis.Addr == "" {
			errs.add("tenants.redis.addr", "is required for the redis source")
		}
	case TenantSourceStatic:
		codes := make(map[string]int)
		for i, st := range t.Static {
			if st.ID == "" && st.Username == "" {
				errs.add(fmt.Sprintf("tenants.static[%d]", i), "needs an id or username")
			}
			if st.Code == "" {
				continue
			}
			if prev, ok := codes[st.Code]; ok {
				errs.add(fmt.Sprintf("tenants.static[%d].code", i),
					fmt.Sprintf("duplicate code %q (also used by entry %d)", st.Code, prev))
				continue
			}
			codes[st.Code] = i
		}
	}
}

func validSourcesList() string {
	sources := make([]string, 0, len(ValidTenantSources))
	for s := range ValidTenantSources {
		sources = append(sources, string(s))
	}
	sort.Strings(sources)
	return strings.Join(sources, ", ")
}

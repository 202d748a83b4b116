package tenant

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dgnsrekt/overlay-relay/internal/relay"
)

// LoadFile reads tenants from a JSONL file, one object per line:
//
//	{"id":"alice","username":"Alice","code":"ABC123","active":true}
//
// Malformed lines are logged and skipped.
func LoadFile(path string, logger *zap.Logger) (*Static, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tenants file: %w", err)
	}
	defer file.Close()

	var tenants []relay.Tenant
	scanner := bufio.NewScanner(file)
	// Increase buffer size for long lines
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var t relay.Tenant
		if err := json.Unmarshal(line, &t); err != nil {
			logger.Warn("skipping malformed tenant line",
				zap.String("path", path),
				zap.Int("line", lineNum),
				zap.Error(err),
			)
			continue
		}
		if t.ID == "" && t.Username == "" {
			logger.Warn("skipping tenant without id or username",
				zap.String("path", path),
				zap.Int("line", lineNum),
			)
			continue
		}
		tenants = append(tenants, t)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading tenants file: %w", err)
	}

	logger.Info("loaded tenants",
		zap.String("path", path),
		zap.Int("count", len(tenants)),
	)
	return NewStatic(tenants), nil
}

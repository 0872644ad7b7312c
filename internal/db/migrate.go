package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed sql/pre_automigrate.sql
var preAutoMigrateSQL string

//go:embed sql/post_automigrate.sql
var postAutoMigrateSQL string

// storifyTables lists the relations the orchestrator reads and writes.
var storifyTables = []string{"storify.tweets", "storify.closed_stories"}

// Migrate creates the storify schema, its tables and the indexes gorm does
// not express. Every step is idempotent. It returns the names of the steps
// that ran.
func (p *Pool) Migrate(ctx context.Context) ([]string, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	var applied []string
	if ran, err := executeMigrationSQL(ctx, p, "create-schema", preAutoMigrateSQL); err != nil {
		return applied, err
	} else if ran {
		applied = append(applied, "create-schema")
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return applied, fmt.Errorf("gorm auto-migrate models: %w", err)
	}
	applied = append(applied, "auto-migrate")

	if ran, err := executeMigrationSQL(ctx, p, "jsonb-indexes", postAutoMigrateSQL); err != nil {
		return applied, err
	} else if ran {
		applied = append(applied, "jsonb-indexes")
	}

	return applied, nil
}

// MissingTables reports which storify tables do not exist.
func (p *Pool) MissingTables(ctx context.Context) ([]string, error) {
	var missing []string
	for _, table := range storifyTables {
		var exists bool
		if err := p.QueryRow(ctx, `SELECT to_regclass($1::text) IS NOT NULL`, table).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}
	return missing, nil
}

func executeMigrationSQL(ctx context.Context, p *Pool, label, sqlText string) (bool, error) {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return false, nil
	}
	if err := p.gdb.WithContext(ctx).Exec(trimmed).Error; err != nil {
		return false, fmt.Errorf("execute %s SQL: %w", label, err)
	}
	return true, nil
}

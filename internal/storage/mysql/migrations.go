package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"Parry-QV/deploy/migrations"
	"Parry-QV/pkg/logger"
)

const migrationsTable = "qv_schema_migrations"

// Migrate 按版本顺序执行尚未应用的内嵌迁移脚本。已应用脚本的内容
// 被修改时返回错误，需要新增版本而不是改写旧脚本。
func Migrate(ctx context.Context, db *sql.DB) error {
	files, err := migrations.Load()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
        version INT NOT NULL PRIMARY KEY,
        name VARCHAR(128) NOT NULL,
        checksum CHAR(64) NOT NULL,
        applied_at BIGINT NOT NULL
)`); err != nil {
		return fmt.Errorf("创建 %s 表失败: %w", migrationsTable, err)
	}

	applied, err := appliedChecksums(ctx, db)
	if err != nil {
		return err
	}
	pending, err := pendingMigrations(files, applied)
	if err != nil {
		return err
	}
	log := logger.Named("storage.mysql")
	for _, m := range pending {
		if err := apply(ctx, db, m); err != nil {
			return err
		}
		log.Info("已应用数据库迁移", slog.Int("version", m.Version), slog.String("name", m.Name))
	}
	return nil
}

func appliedChecksums(ctx context.Context, db *sql.DB) (map[int]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, checksum FROM `+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("查询迁移记录失败: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var (
			version  int
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("解析迁移记录失败: %w", err)
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历迁移记录失败: %w", err)
	}
	return applied, nil
}

// pendingMigrations 返回尚未应用的脚本，并校验已应用脚本未被改动。
func pendingMigrations(files []migrations.Migration, applied map[int]string) ([]migrations.Migration, error) {
	var pending []migrations.Migration
	for _, m := range files {
		checksum, ok := applied[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if checksum != m.Checksum {
			return nil, fmt.Errorf("迁移 %s 已应用但内容被修改", m.Name)
		}
	}
	return pending, nil
}

// apply 在一个事务内执行脚本。MySQL 的 DDL 会隐式提交，
// 因此脚本本身需要保持可重复执行（IF NOT EXISTS）。
func apply(ctx context.Context, db *sql.DB, m migrations.Migration) error {
	statements := splitSQLStatements(m.SQL)
	if len(statements) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("执行迁移 %s 失败: %w", m.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+migrationsTable+` (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)`,
		m.Version, m.Name, m.Checksum, time.Now().Unix()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("记录迁移版本失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移事务失败: %w", err)
	}
	return nil
}

// splitSQLStatements 按分号拆分脚本，忽略空语句与整行 -- 注释。
func splitSQLStatements(content string) []string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	var statements []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

// Package migrate applies SQL schema migrations in file-name order
package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Result reports which files were applied or skipped
// マイグレーション実行結果
type Result struct {
	Applied []string
	Skipped []string
}

// Run applies every *.sql file in migrations that has not been recorded in
// schema_migrations. Each file runs in its own transaction together with its
// history row.
// 未実行のマイグレーションを順に実行
func Run(ctx context.Context, db *sqlx.DB, migrations fs.FS, logger *zap.Logger) (*Result, error) {
	if err := createMigrationTable(ctx, db); err != nil {
		return nil, err
	}
	logger.Info("マイグレーション履歴テーブルを確認/作成しました")

	files, err := fs.Glob(migrations, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("マイグレーションファイル検索エラー: %w", err)
	}
	sort.Strings(files)

	executed, err := getExecutedMigrations(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("実行済みマイグレーション取得エラー: %w", err)
	}

	result := &Result{}
	for _, filename := range files {
		content, err := fs.ReadFile(migrations, filename)
		if err != nil {
			return result, fmt.Errorf("ファイル読み込みエラー %s: %w", filename, err)
		}
		checksum := Checksum(content)

		if recorded, ok := executed[filename]; ok {
			if recorded != checksum {
				logger.Warn("実行済みマイグレーションの内容が変更されています",
					zap.String("filename", filename),
					zap.String("recorded", recorded),
					zap.String("current", checksum),
				)
			}
			result.Skipped = append(result.Skipped, filename)
			continue
		}

		logger.Info("マイグレーション実行中", zap.String("filename", filename))
		if err := apply(ctx, db, filename, string(content), checksum); err != nil {
			return result, err
		}
		result.Applied = append(result.Applied, filename)
		logger.Info("マイグレーション完了", zap.String("filename", filename))
	}

	return result, nil
}

// Checksum returns the hex SHA-256 of a migration file
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func apply(ctx context.Context, db *sqlx.DB, filename, content, checksum string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始エラー %s: %w", filename, err)
	}

	if _, err := tx.ExecContext(ctx, content); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("マイグレーション実行エラー %s: %w", filename, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (filename, checksum) VALUES ($1, $2)",
		filename, checksum,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("マイグレーション履歴記録エラー %s: %w", filename, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションコミットエラー %s: %w", filename, err)
	}
	return nil
}

func createMigrationTable(ctx context.Context, db *sqlx.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			filename VARCHAR(255) NOT NULL UNIQUE,
			executed_at TIMESTAMP NOT NULL DEFAULT NOW(),
			checksum VARCHAR(64) NOT NULL
		)`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("マイグレーション履歴テーブル作成エラー: %w", err)
	}
	return nil
}

// getExecutedMigrations returns filename to checksum for applied migrations
func getExecutedMigrations(ctx context.Context, db *sqlx.DB) (map[string]string, error) {
	var rows []struct {
		Filename string `db:"filename"`
		Checksum string `db:"checksum"`
	}
	if err := db.SelectContext(ctx, &rows, "SELECT filename, checksum FROM schema_migrations"); err != nil {
		return nil, err
	}

	executed := make(map[string]string, len(rows))
	for _, row := range rows {
		executed[row.Filename] = strings.TrimSpace(row.Checksum)
	}
	return executed, nil
}

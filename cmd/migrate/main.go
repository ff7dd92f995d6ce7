package main

import (
	"context"
	"flag"
	"io/fs"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nemonet1337/pharmastock/internal/config"
	"github.com/nemonet1337/pharmastock/internal/migrate"
	"github.com/nemonet1337/pharmastock/migrations"
)

func main() {
	configPath := flag.String("config", os.Getenv("PHARMASTOCK_CONFIG"), "設定ファイルのパス")
	dir := flag.String("dir", "", "マイグレーションディレクトリ（未指定時は組み込みスキーマ）")
	flag.Parse()

	// 設定読み込み
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("設定読み込みに失敗しました: " + err.Error())
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		panic("ログ初期化に失敗しました: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("pharmastock マイグレーション実行ツール")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger.Info("データベースに接続中",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("dbname", cfg.Database.DBName),
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer db.Close()

	logger.Info("データベース接続が確立されました")

	var source fs.FS = migrations.FS
	if *dir != "" {
		if _, err := os.Stat(*dir); os.IsNotExist(err) {
			logger.Fatal("マイグレーションディレクトリが見つかりません", zap.String("dir", *dir))
		}
		source = os.DirFS(*dir)
	}

	result, err := migrate.Run(ctx, db, source, logger)
	if err != nil {
		logger.Fatal("マイグレーション実行に失敗しました", zap.Error(err))
	}

	logger.Info("すべてのマイグレーションが完了しました",
		zap.Strings("applied", result.Applied),
		zap.Strings("skipped", result.Skipped),
	)
}

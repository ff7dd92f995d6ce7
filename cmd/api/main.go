package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nemonet1337/pharmastock/internal/config"
	"github.com/nemonet1337/pharmastock/internal/telemetry"
	"github.com/nemonet1337/pharmastock/pkg/inventory"
	"github.com/nemonet1337/pharmastock/pkg/inventory/events"
	"github.com/nemonet1337/pharmastock/pkg/inventory/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("PHARMASTOCK_CONFIG"), "設定ファイルのパス")
	backend := flag.String("storage", "postgres", "ストレージ種別（postgres, memory）")
	flag.Parse()

	// 設定読み込み
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	// ログ設定
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := openStorage(ctx, *backend, cfg.Database, logger)
	cancel()
	if err != nil {
		logger.Fatal("ストレージ初期化に失敗しました", zap.Error(err))
	}
	defer store.Close()

	// イベント配信
	var publisher inventory.EventPublisher
	if cfg.Events.Enabled {
		amqpPublisher, err := events.Dial(cfg.Events.URL, cfg.Events.Exchange, logger)
		if err != nil {
			logger.Fatal("イベント配信の初期化に失敗しました", zap.Error(err))
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		logger.Info("イベント配信を有効化しました", zap.String("exchange", cfg.Events.Exchange))
	}

	metrics, err := telemetry.New(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("メトリクス初期化に失敗しました", zap.Error(err))
	}

	// 在庫マネージャー初期化
	managerConfig := cfg.Inventory.ManagerConfig()
	manager := inventory.NewManager(store, publisher, logger, managerConfig).WithObserver(metrics)

	// HTTPハンドラー設定
	handlers := NewHandlers(manager, logger, managerConfig.Currency)
	router := setupRouter(handlers, metrics, cfg.API)

	// HTTPサーバー設定
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	// グレースフルシャットダウン設定
	go func() {
		logger.Info("在庫管理APIサーバーを開始します",
			zap.Int("port", cfg.API.Port),
			zap.String("storage", *backend),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー開始に失敗しました", zap.Error(err))
		}
	}()

	// シャットダウンシグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	// グレースフルシャットダウン
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーが正常に停止しました")
}

// openStorage opens the configured storage backend
// ストレージを初期化
func openStorage(ctx context.Context, backend string, db config.DatabaseConfig, logger *zap.Logger) (inventory.Storage, error) {
	switch backend {
	case "postgres":
		pg, err := storage.NewPostgreSQLStorage(ctx, db.DSN(), db.PoolOptions(), logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "memory":
		logger.Warn("インメモリストレージを使用します（再起動でデータは失われます）")
		return storage.NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("未対応のストレージ種別です: %s", backend)
}

// setupRouter sets up HTTP routes
// HTTPルートを設定
func setupRouter(handlers *Handlers, metrics *telemetry.Metrics, apiConfig config.APIConfig) *mux.Router {
	router := mux.NewRouter()

	// ヘルスチェック
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	if apiConfig.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	// API v1ルート
	api := router.PathPrefix("/api/v1").Subrouter()

	// 在庫業務
	api.HandleFunc("/intakes", handlers.RecordIntake).Methods("POST")
	api.HandleFunc("/intakes", handlers.ListIntakes).Methods("GET")
	api.HandleFunc("/transfers", handlers.Transfer).Methods("POST")
	api.HandleFunc("/sales", handlers.RecordSale).Methods("POST")
	api.HandleFunc("/sales/lines", handlers.ListSaleLines).Methods("GET")
	api.HandleFunc("/sales/{saleId}", handlers.GetSale).Methods("GET")

	// 台帳
	api.HandleFunc("/ledger/upsert", handlers.UpsertQuantity).Methods("POST")
	api.HandleFunc("/ledger/adjust", handlers.Adjust).Methods("POST")
	api.HandleFunc("/ledger/dispose", handlers.Dispose).Methods("POST")
	api.HandleFunc("/ledger/{location}", handlers.ListByLocation).Methods("GET")
	api.HandleFunc("/ledger/{location}/low-stock", handlers.LowStock).Methods("GET")

	// 評価・分析
	api.HandleFunc("/valuation", handlers.TotalValue).Methods("GET")
	api.HandleFunc("/valuation/{location}", handlers.LocationValue).Methods("GET")
	api.HandleFunc("/metrics/profit", handlers.ProfitMetrics).Methods("GET")
	api.HandleFunc("/movements", handlers.RecentActivity).Methods("GET")

	// アラート
	api.HandleFunc("/alerts", handlers.GetAlerts).Methods("GET")
	api.HandleFunc("/alerts/{alertId}/resolve", handlers.ResolveAlert).Methods("POST")

	// レポート出力
	api.HandleFunc("/reports/ledger/{location}", handlers.LedgerReport).Methods("GET")
	api.HandleFunc("/reports/profit", handlers.ProfitReport).Methods("GET")

	if apiConfig.EnableCORS {
		router.Use(corsMiddleware)
	}

	// ログ機能
	router.Use(loggingMiddleware(handlers.logger, metrics))

	return router
}

// corsMiddleware allows cross-origin requests
// CORS設定
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-User-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests and records request metrics
// HTTPリクエストをログ出力するミドルウェア
func loggingMiddleware(logger *zap.Logger, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := telemetry.NewStatusRecorder(w)

			// リクエスト処理
			next.ServeHTTP(recorder, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			elapsed := time.Since(start)
			if metrics != nil {
				metrics.ObserveHTTP(r.Method, route, recorder.Status, elapsed)
			}

			// ログ出力
			logger.Info("HTTPリクエスト",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", recorder.Status),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", elapsed),
			)
		})
	}
}

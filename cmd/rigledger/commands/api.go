package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/rigledger/internal/api"
	"github.com/wonny/rigledger/internal/api/handlers"
	"github.com/wonny/rigledger/internal/realtime"
	"github.com/wonny/rigledger/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- 스키마 마이그레이션 (--migrate)
- 판독값 적재 / 조회 엔드포인트 제공
- 시뮬레이터 생성 / 백필 트리거 제공
- 실시간 판독값 WebSocket 스트림 제공

Endpoints:
  GET  /health
  POST /api/readings                    - 단건 적재
  POST /api/readings/bulk               - 배치 적재
  GET  /api/readings/latest             - 리그별 최신값
  GET  /api/readings/today              - 오늘 요약
  GET  /api/rigs/{rigID}/history        - 이력 조회
  GET  /api/rigs/{rigID}/series?date=   - 1440분 시리즈
  GET  /api/rigs/{rigID}/lots/{date}    - lot 조회
  POST /api/simulator/generate          - 리그별 1샘플 생성
  POST /api/simulator/backfill          - 하루 백필
  GET  /ws/readings                     - 실시간 스트림

Example:
  go run ./cmd/rigledger api
  go run ./cmd/rigledger api --port 8080 --migrate`,
	RunE: runAPIServer,
}

var (
	apiPort    string
	apiMigrate bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본값: PORT)")
	apiCmd.Flags().BoolVar(&apiMigrate, "migrate", false, "시작 전에 스키마 마이그레이션 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== rigledger API Server ===")

	// 1. Wire components
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	log := a.log
	log.WithFields(map[string]interface{}{
		"port":       a.cfg.Port,
		"env":        a.cfg.Env,
		"utc_offset": a.cfg.Ledger.UTCOffset,
		"redis":      a.redis.Enabled(),
	}).Info("Initializing API server")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 2. Schema
	if apiMigrate {
		if err := a.db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("Schema migrated")
	}

	// 3. Realtime hub
	hub := realtime.NewHub(log)
	go hub.Run(ctx)
	a.ingestor.SetPublisher(hub)

	// 4. Handlers
	h := api.Handlers{
		Readings:  handlers.NewReadingsHandler(a.ingestor, a.series, log),
		Rigs:      handlers.NewRigsHandler(a.series, log),
		Simulator: handlers.NewSimulatorHandler(a.simulator, log),
		Live:      hub,
	}

	// 5. Rate limiter (Redis sliding window when available)
	limiter := api.NewIngestLimiter(
		a.cfg.API.IngestRPS,
		a.cfg.API.IngestBurst,
		redis.NewRateLimiter(a.redis, "rigledger"),
		log,
	)

	// 6. Router + server
	router := api.NewRouter(h, limiter, log)
	server := api.New(a.cfg, log, router)

	// 7. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	stop()

	log.Info("Server stopped")
	return nil
}

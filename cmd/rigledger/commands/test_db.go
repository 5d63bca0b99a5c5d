package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/rigledger/pkg/config"
	"github.com/wonny/rigledger/pkg/database"
	"github.com/wonny/rigledger/pkg/redis"
)

// testDBCmd represents the test-db command
var testDBCmd = &cobra.Command{
	Use:   "test-db",
	Short: "PostgreSQL / Redis 연결 점검",
	Long: `데이터베이스 연결과 ledger 스키마, Redis 상태를 점검합니다.

이 명령어는:
- Ping / Health Check
- Connection Pool 통계
- ledger.rigs / lots / readings 테이블 존재 여부
- Redis 연결 (REDIS_ENABLED=true 일 때)

Example:
  go run ./cmd/rigledger test-db`,
	RunE: runTestDB,
}

func init() {
	rootCmd.AddCommand(testDBCmd)
}

func runTestDB(cmd *cobra.Command, args []string) error {
	fmt.Println("=== rigledger Database Connection Test ===")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("❌ Failed to load config: %w", err)
	}
	fmt.Printf("✅ Config loaded (ENV: %s, offset %s)\n", cfg.Env, cfg.Ledger.UTCOffset)
	fmt.Printf("   Database URL: %s\n\n", maskPassword(cfg.Database.URL))

	// Create database connection
	fmt.Println("Connecting to database...")
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("❌ Failed to connect to database: %w", err)
	}
	defer db.Close()
	fmt.Println("✅ Database connection established")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("❌ Health check failed: %w", err)
	}

	fmt.Printf("✅ Healthy (ping %v at %s)\n\n", status.ResponseTime, status.Timestamp.Format(time.RFC3339))

	st := status.Stats
	fmt.Println("📊 Pool:")
	fmt.Printf("   conns %d/%d (acquired %d, idle %d)\n", st.TotalConns, st.MaxConns, st.AcquiredConns, st.IdleConns)
	fmt.Printf("   acquires %d (cancelled %d, waited %v)\n", st.AcquireCount, st.CanceledAcquireCount, st.AcquireDuration)

	fmt.Println("\n🗂  Ledger schema:")
	missing := 0
	for _, table := range ledgerTables {
		var found *string
		if err := db.Pool.QueryRow(ctx, "SELECT to_regclass($1)::text", table).Scan(&found); err != nil {
			return fmt.Errorf("❌ Failed to inspect %s: %w", table, err)
		}
		mark := "✅"
		if found == nil {
			mark = "⚠️ "
			missing++
		}
		fmt.Printf("   %s %s\n", mark, table)
	}
	if missing > 0 {
		fmt.Println("   → run: go run ./cmd/rigledger migrate")
	}

	fmt.Println("\n🔌 Redis:")
	rc, err := redis.New(cfg)
	switch {
	case err != nil:
		fmt.Printf("   ⚠️  unreachable (%v); cache and shared rate limit disabled\n", err)
	case !rc.Enabled():
		fmt.Println("   disabled (REDIS_ENABLED=false)")
	default:
		defer rc.Close()
		fmt.Printf("   ✅ connected (%s:%s db=%d)\n", cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.DB)
	}

	fmt.Println("\n✅ All checks passed!")
	return nil
}

var ledgerTables = []string{"ledger.rigs", "ledger.lots", "ledger.readings"}

// maskPassword hides the password in the database URL for display
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

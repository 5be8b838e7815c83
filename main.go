package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"break-timer-system/handlers"
	"break-timer-system/middleware"
	"break-timer-system/models"
	"break-timer-system/services"
	"break-timer-system/utils"
	"break-timer-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // icons only, nothing bigger
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Printf("⚠️ R2 not configured, icon uploads disabled: %v", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.UserAccount{},
		&models.UserTimerSettings{},
		&models.TimerSession{},
		&models.TimerInterval{},
		&models.BreakRecord{},
		&models.DailyStats{},
		&models.WeeklyStats{},
		&models.MonthlyStats{},
		&models.UserStreakData{},
		&models.UserLevel{},
		&models.Badge{},
		&models.UserBadge{},
		&models.Challenge{},
		&models.ChallengeParticipation{},
		&models.ActivityFeedEntry{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	var events services.EventPublisher
	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL != "" {
		publisher, err := services.NewAMQPPublisher(amqpURL, "break-timer-events")
		if err != nil {
			log.Printf("⚠️ Event broker unavailable, falling back to log-only publishing: %v", err)
			events = services.NopPublisher{}
		} else {
			events = publisher
		}
	} else {
		log.Println("⚠️  AMQP_URL not set, events are log-only")
		events = services.NopPublisher{}
	}

	complianceService := services.NewComplianceService(db)
	progressionService := services.NewProgressionService(db, events, complianceService)
	badgeService := services.NewBadgeService(db, events, progressionService, complianceService)
	challengeService := services.NewChallengeService(db, events, progressionService)
	sessionService := services.NewSessionService(db, events, complianceService, progressionService, badgeService, challengeService)

	if err := badgeService.SeedDefaultBadges(); err != nil {
		log.Fatal("failed to seed badge catalog:", err)
	}

	accountsServiceURL := os.Getenv("ACCOUNTS_SERVICE_URL")
	if accountsServiceURL == "" {
		log.Fatal("ACCOUNTS_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("BREAK_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("BREAK_SERVICE_TOKEN environment variable not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker := workers.NewAccountSyncWorker(db, accountsServiceURL, "/api/v1/internal/accounts/changes", serviceToken)
	syncWorker.Start(ctx)

	sessionService.StartSchedulers()

	handlers.SetupTimerRoutes(app, sessionService)
	handlers.SetupAnalyticsRoutes(app, complianceService)
	handlers.SetupGamificationRoutes(app, progressionService, badgeService, challengeService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Account Sync Worker running")
	log.Println("✅ Stale-session sweep and stats reconciliation scheduled")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}

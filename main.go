package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/internal/database"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/server"
	"github.com/customeros/mailgovernor/services"
	"github.com/customeros/mailgovernor/services/content"
	"github.com/customeros/mailgovernor/services/delivery"
)

func main() {
	app := &cli.App{
		Name:  "mailgovernor",
		Usage: "reputation-aware sending governor for outbound mail accounts",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: serve,
			},
			{
				Name:   "seed-spam-words",
				Usage:  "Install the default spam word dictionary",
				Action: seedSpamWords,
			},
			{
				Name:  "replay-webhooks",
				Usage: "Re-ingest the archived provider webhooks of one day",
				Flags: []cli.Flag{
					&cli.TimestampFlag{
						Name:     "day",
						Usage:    "UTC day to replay",
						Layout:   time.DateOnly,
						Timezone: time.UTC,
						Required: true,
					},
				},
				Action: replayWebhooks,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, cli.Exit("Config initialization failed: "+err.Error(), 1)
	}

	db, err := database.InitGovernorDatabase(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, cli.Exit("Database initialization failed: "+err.Error(), 1)
	}
	return cfg, db, nil
}

func commandLogger(cfg *config.Config) logger.Logger {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()
	return appLogger
}

func migrate(_ *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}

	if err := repository.MigrateDB(cfg.DatabaseConfig, db); err != nil {
		return cli.Exit("Database migration failed: "+err.Error(), 1)
	}
	log.Println("Database migration completed successfully")
	return nil
}

func serve(_ *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Mail governor starting up...")

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return cli.Exit("Server setup failed: "+err.Error(), 1)
	}
	if err := srv.Run(); err != nil {
		return cli.Exit("Server startup failed: "+err.Error(), 1)
	}

	log.Println("Shutdown complete")
	return nil
}

func seedSpamWords(c *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}

	contentService := content.NewContentService(commandLogger(cfg), repository.InitRepositories(db), nil)
	n, err := contentService.SeedDefaults(c.Context)
	if err != nil {
		return cli.Exit("Seeding spam words failed: "+err.Error(), 1)
	}
	log.Printf("Seeded %d spam words", n)
	return nil
}

func replayWebhooks(c *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}
	appLogger := commandLogger(cfg)

	svcs, err := services.InitServices(cfg, appLogger, repository.InitRepositories(db), nil, nil)
	if err != nil {
		return cli.Exit("Service initialization failed: "+err.Error(), 1)
	}
	defer svcs.EventsService.Close()

	ctx, cancel := context.WithTimeout(c.Context, time.Hour)
	defer cancel()

	summary, err := delivery.NewReplayer(appLogger, svcs.DeliveryService, svcs.StorageService).Replay(ctx, *c.Timestamp("day"))
	if summary != nil {
		log.Printf("Replayed %s: %d archived, %d applied, %d duplicates, %d unresolved, %d invalid",
			summary.Day, summary.Archived, summary.Applied, summary.Duplicates, summary.Unresolved, summary.Invalid)
	}
	if err != nil {
		return cli.Exit("Replay failed: "+err.Error(), 1)
	}
	return nil
}

// @title CAD Practice Backend API
// @version 1.0
// @description Backend service for tolerance-based evaluation of CAD modelling practice questions.

// @contact.name API Support

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"cad_practice_backend/internal/app"
	"cad_practice_backend/internal/config"
	"cad_practice_backend/pkg/configwatcher"
	"cad_practice_backend/pkg/logger"
	"flag"
	"log"
	"path/filepath"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "run database migration and exit")
	migrate := flag.Bool("migrate", false, "force database migration on startup (even in release mode)")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	// NewApp has already run the migration at this point
	if *migrateOnly {
		log.Println("Database migration completed, exiting")
		return
	}

	go configwatcher.WatchConfig(filepath.Join("configs", "config.yaml"), cfg, application.ApplyConfig)

	application.Run()
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"CimplrBankImport/internal/appmanager"
	"CimplrBankImport/internal/artifact"
	"CimplrBankImport/internal/config"
	"CimplrBankImport/internal/logger"
	"CimplrBankImport/internal/parsers"
	"CimplrBankImport/internal/store"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file (ignored when absent)")
	servicesFile := flag.String("services", "services.yaml", "service sequence file")
	flag.Parse()

	// Load .env for local dev
	_ = godotenv.Load(*envFile)
	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.Open(ctx, config.DBFromEnv(), true)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	files, err := artifact.Open(ctx, config.ArtifactsFromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open artifact store")
	}

	appmanager.SetStore(st)
	appmanager.SetArtifacts(files)
	appmanager.SetParser(parsers.New())

	manager := appmanager.NewAppManager()

	servicesCfg, err := appmanager.LoadServiceSequence(*servicesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load service sequence")
	}
	if err := manager.AutoRegisterServices(servicesCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to register services")
	}
	if err := manager.StartAll(); err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	log = logger.Get()
	log.Info().Msg("bank import service running")

	// Graceful shutdown handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	if err := manager.StopAll(); err != nil {
		log.Error().Err(err).Msg("failed to stop")
		os.Exit(1)
	}
}

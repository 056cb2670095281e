package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"

	"github.com/Azure-Samples/tayra/internal/config"
	"github.com/Azure-Samples/tayra/internal/docstore"
	"github.com/Azure-Samples/tayra/internal/export"
	"github.com/Azure-Samples/tayra/internal/logger"
)

func main() {
	_ = godotenv.Load()

	output := flag.String("output", "transcriptions.xlsx", "destination spreadsheet file")
	manager := flag.String("manager", "", "filter export to a specific manager name")
	specialist := flag.String("specialist", "", "filter export to a specific specialist name")
	onlyValid := flag.Bool("only-valid", false, "include only entries marked as valid calls")
	flag.Parse()

	cfg := config.Load()
	log := logger.New()
	log = &logger.Logger{Entry: log.WithField("service", "tayra-export")}

	if cfg.MongoURI == "" {
		log.Fatal("MONGO_URI is required")
	}

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	docs, err := docstore.NewStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to document store")
	}
	defer docs.Close(ctx)

	exporter := export.NewExporter(docs, log.Entry)
	rows, err := exporter.WriteXLSX(ctx, *output, export.Options{
		Manager:    *manager,
		Specialist: *specialist,
		OnlyValid:  *onlyValid,
	})
	if err != nil {
		log.WithError(err).Fatal("export failed")
	}
	log.WithField("rows", rows).WithField("output", *output).Info("export written")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Azure-Samples/tayra/internal/blobstore"
	"github.com/Azure-Samples/tayra/internal/config"
	"github.com/Azure-Samples/tayra/internal/dispatch"
	"github.com/Azure-Samples/tayra/internal/docstore"
	"github.com/Azure-Samples/tayra/internal/logger"
	"github.com/Azure-Samples/tayra/internal/merge"
	"github.com/Azure-Samples/tayra/internal/pipeline"
	"github.com/Azure-Samples/tayra/internal/speech"
	"github.com/Azure-Samples/tayra/internal/types"
)

func main() {
	_ = godotenv.Load() // loads .env

	cfg := config.Load()

	originContainer := flag.String("origin-container", cfg.OriginContainer, "source container that holds audio blobs")
	destinationContainer := flag.String("destination-container", cfg.DestinationContainer, "container for transcripts and run artifacts")
	managerName := flag.String("manager-name", cfg.ManagerName, "filter by manager folder inside the blob path")
	specialistName := flag.String("specialist-name", cfg.SpecialistName, "filter by specialist folder inside the manager path")
	limit := flag.Int("limit", cfg.Limit, "max number of blobs to process before stopping (-1 = all)")
	concurrency := flag.Int("concurrency", cfg.Concurrency, "max concurrent speech requests per group")
	batchSize := flag.Int("batch-size", cfg.BatchSize, "number of blobs dispatched per group")
	resultsPerPage := flag.Int("results-per-page", cfg.ResultsPerPage, "number of blobs to fetch per listing page")
	onlyFailed := flag.Bool("only-failed", cfg.OnlyFailed, "process only blobs flagged as failed in the document store")
	useCache := flag.Bool("use-cache", cfg.UseCache, "skip blobs that already have a transcription artifact")
	runEvaluation := flag.Bool("run-evaluation-flow", false, "accepted for compatibility; evaluation is not part of this tool")
	flag.Parse()

	log, buffer := logger.NewBuffered()
	log = &logger.Logger{Entry: log.WithField("service", "tayra-transcriber")}
	log.Info("starting transcription engine")
	if *runEvaluation {
		log.Warn("run-evaluation-flow is not supported here and will be ignored")
	}

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := blobstore.NewAzureStore(cfg.StorageConnectionString)
	if err != nil {
		log.WithError(err).Fatal("failed to create blob store")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	docs, err := docstore.NewStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to document store")
	}
	defer docs.Close(context.Background())

	filter := types.JobFilter{
		OriginContainer:      *originContainer,
		DestinationContainer: *destinationContainer,
		ManagerName:          *managerName,
		SpecialistName:       *specialistName,
		Limit:                *limit,
		OnlyFailed:           *onlyFailed,
		UseCache:             *useCache,
		Concurrency:          *concurrency,
		BatchSize:            *batchSize,
		ResultsPerPage:       int32(*resultsPerPage),
	}

	client := speech.NewClient(speech.ClientConfig{
		Endpoint:       cfg.SpeechEndpoint,
		Key:            cfg.SpeechKey,
		APIVersion:     cfg.SpeechAPIVersion,
		ProfanityMode:  cfg.SpeechProfanityMode,
		WordTimestamps: cfg.SpeechWordTimestamps,
		Diarization:    cfg.SpeechDiarization,
		BaseModel:      cfg.SpeechBaseModel,
		Locales:        cfg.SpeechLocales,
	}, log.Entry)

	transcriber := &speech.BlobTranscriber{
		Client:    client,
		Blobs:     blobs,
		Container: filter.OriginContainer,
		Log:       log.Entry,
	}
	dispatcher := dispatch.NewDispatcher(transcriber, filter.Concurrency, log.Entry)
	merger := merge.NewMerger(docs, log.Entry)

	coordinator := pipeline.NewCoordinator(blobs, docs, dispatcher, merger, log.Entry, buffer)
	summary, err := coordinator.Run(ctx, filter)
	if err != nil {
		log.WithError(err).Fatal("transcription job failed")
	}
	log.WithField("processed", summary.ProcessedFiles).
		WithField("duration", summary.DurationHuman).
		Info("transcription job complete")
}

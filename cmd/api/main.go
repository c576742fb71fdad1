package main

import (
	"context"
	"log"

	"gigflow/bootstrap"
	"gigflow/config"
	"gigflow/deletion"
	"gigflow/profile"
	"gigflow/rating"
	"gigflow/registration"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	logger, err := bootstrap.Logger()
	if err != nil {
		log.Fatalf("bootstrap logger: %v", err)
	}
	defer logger.Sync()

	ds, closeStore, err := bootstrap.Store(ctx, cfg)
	if err != nil {
		logger.Fatalw("bootstrap store", "err", err)
	}
	if closeStore != nil {
		defer closeStore()
	}

	ids, err := bootstrap.Identity(ctx, cfg)
	if err != nil {
		logger.Fatalw("bootstrap identity", "err", err)
	}
	assets, err := bootstrap.Media(ctx, cfg)
	if err != nil {
		logger.Fatalw("bootstrap media", "err", err)
	}

	services := struct {
		Registration *registration.Service
		Profile      *profile.Router
		Deletion     *deletion.Engine
		Rating       *rating.Aggregator
	}{
		Registration: registration.NewService(ids, ds, logger),
		Profile:      profile.NewRouter(ds, logger),
		Deletion:     deletion.NewEngine(ds, ids, assets, logger).WithWorkers(cfg.Reconcile.Workers),
		Rating:       rating.NewAggregator(ds, logger).WithWriteBack(cfg.Rating.CacheWriteBack),
	}

	logger.Infow("lifecycle services ready",
		"backend", cfg.Backend,
		"wired", services.Registration != nil && services.Profile != nil &&
			services.Deletion != nil && services.Rating != nil)
}

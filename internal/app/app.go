package app

import (
	"context"
	"fmt"
	"log"

	"jsonjoin/internal/config"
	"jsonjoin/internal/etl"
	"jsonjoin/internal/etl/sources"
	"jsonjoin/internal/publish"
	"jsonjoin/internal/secret"
	"jsonjoin/internal/service"
	"jsonjoin/internal/storage"
)

// App owns storage and the services built on it. serve and mcp share it.
type App struct {
	cfg *config.Config

	db        *storage.DB
	secrets   secret.SecretStore
	publisher *publish.Publisher

	Joins    *service.JoinService
	Database *service.DatabaseService
}

// New opens storage under cfg.Storage and wires the services.
func New(cfg *config.Config, emitter service.EventEmitter) (*App, error) {
	secrets, err := secret.New(cfg.Secrets.Backend, cfg.Secrets.EnvPrefix)
	if err != nil {
		return nil, err
	}

	db, err := storage.New(cfg.Storage.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{
		cfg:      cfg,
		db:       db,
		secrets:  secrets,
		Joins:    service.NewJoinService(storage.NewJobStore(db), storage.NewJoinedRowStore(db), emitter),
		Database: service.NewDatabaseService(storage.NewDBConnectionStore(db), secrets),
	}

	// database sources reach stored connections through the service
	sources.SetDBProvider(a.Database)

	if cfg.AMQP.URL != "" {
		a.publisher = publish.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
		a.Joins.SetDestination(etl.TargetAMQP, a.publisher)
	}
	return a, nil
}

// Shutdown stops triggers, waits for running jobs until ctx ends, then
// releases connections and storage.
func (a *App) Shutdown(ctx context.Context) {
	a.Joins.Stop()
	a.Joins.WaitRunning(ctx)
	a.Database.Close()
	sources.SetDBProvider(nil)
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Printf("action: amqp_close | result: fail | error: %v", err)
		}
	}
	if err := a.db.Close(); err != nil {
		log.Printf("close database: %v", err)
	}
}

package app

import (
	"net/http"

	"github.com/saulpulido52/litam-sub010/internal/config"
	"github.com/saulpulido52/litam-sub010/internal/db"
	continuitydomain "github.com/saulpulido52/litam-sub010/internal/domain/continuity"
	entitlementdomain "github.com/saulpulido52/litam-sub010/internal/domain/entitlement"
	relationshipdomain "github.com/saulpulido52/litam-sub010/internal/domain/relationship"
	"github.com/saulpulido52/litam-sub010/internal/repository/postgres/care"
	continuityrepo "github.com/saulpulido52/litam-sub010/internal/repository/postgres/continuity"
	entitlementrepo "github.com/saulpulido52/litam-sub010/internal/repository/postgres/entitlement"
	relationshiprepo "github.com/saulpulido52/litam-sub010/internal/repository/postgres/relationship"
	"github.com/saulpulido52/litam-sub010/internal/transport/httpserver"
	"github.com/saulpulido52/litam-sub010/internal/transport/httpserver/handler"
	"github.com/saulpulido52/litam-sub010/pkg/logger"
	"gorm.io/gorm"
)

type App struct {
	cfg        config.Config
	httpServer *http.Server
	sweeper    *entitlementdomain.Sweeper
	db         *gorm.DB
}

func New(log logger.Logger) (*App, error) {
	cfg, err := config.Load(log)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.NewPostgres(cfg.DB, log)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(dbConn); err != nil {
		return nil, err
	}

	relationRepo := relationshiprepo.NewPostgres(dbConn)
	recordRepo := continuityrepo.NewPostgres(dbConn)
	entitlementRepo := entitlementrepo.NewPostgres(dbConn)
	unitOfWork := care.NewUnitOfWork(dbConn)

	relationService := relationshipdomain.NewService(relationRepo, unitOfWork)
	recordService := continuitydomain.NewService(recordRepo, relationService)
	entitlementService := entitlementdomain.NewService(entitlementRepo)
	sweeper := entitlementdomain.NewSweeper(entitlementRepo, log, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize)

	handlers := handler.New(relationService, recordService, entitlementService, sweeper, log)
	router := httpserver.NewRouter(cfg, handlers)
	srv := httpserver.New(cfg, router)

	return &App{
		cfg:        cfg,
		httpServer: srv,
		sweeper:    sweeper,
		db:         dbConn,
	}, nil
}

func (a *App) HTTPServer() *http.Server {
	return a.httpServer
}

func (a *App) Sweeper() *entitlementdomain.Sweeper {
	return a.sweeper
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

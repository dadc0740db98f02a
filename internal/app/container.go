// Package app wires the client-side dependencies together.
package app

import (
	"github.com/tourverse/traveler/domain"
	"github.com/tourverse/traveler/internal/config"
	"github.com/tourverse/traveler/internal/guard"
	"github.com/tourverse/traveler/internal/httpclient"
	"github.com/tourverse/traveler/internal/services"
	"github.com/tourverse/traveler/internal/session"
	"github.com/tourverse/traveler/internal/storage"
	"github.com/tourverse/traveler/internal/token"
)

// Container holds all client dependencies.
type Container struct {
	Config   *config.Config
	Storage  domain.Storage
	Sessions *session.Store
	API      *httpclient.Client
	Auth     domain.AuthService
	Guard    *guard.Guard
}

// NewContainer creates and initializes all dependencies with file-backed
// persistence at the configured storage path.
func NewContainer(cfg *config.Config) (*Container, error) {
	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		return nil, err
	}
	return NewContainerWithStorage(cfg, store)
}

// NewContainerWithStorage wires the container over the given persistence;
// tests inject an in-memory store here.
func NewContainerWithStorage(cfg *config.Config, store domain.Storage) (*Container, error) {
	sessions := session.NewStore(store)
	api := httpclient.New(cfg.BaseURL, cfg.Timeout, sessions, store)
	auth := services.NewAuthService(api, sessions, token.NewInspector())

	routeGuard, err := guard.New(cfg.RouteTable, cfg.LoginRoute, cfg.LandingRoute)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:   cfg,
		Storage:  store,
		Sessions: sessions,
		API:      api,
		Auth:     auth,
		Guard:    routeGuard,
	}, nil
}

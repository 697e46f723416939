// Package pusherapp implements the application registry: the mapping from
// app-key and app-id to an application's credentials and channel registry.
package pusherapp

import (
	"errors"

	"github.com/adred-codev/pulsewire/internal/channel"
)

// Sentinel lookup errors. The HTTP layer maps these to the fixed error
// taxonomy in internal/httpapi.
var (
	ErrAppKeyNotFound = errors.New("app key not found")
	ErrAppIDNotFound  = errors.New("app id not found")
)

// App is a tenant identified by an (id, key, secret) triple, owning one
// isolated channel registry. Applications are registered at startup and are
// immutable at runtime; adding/removing apps is an administrative action
// outside this package's scope.
type App struct {
	ID                     string
	Key                    string
	Secret                 string
	Name                   string
	ClientMessagesEnabled  bool
	Channels               *channel.Registry
}

// Config describes one application to register at startup.
type Config struct {
	ID     string
	Key    string
	Secret string
	Name   string
}

// Registry is a read-mostly lookup from app-key and app-id to *App. It is
// populated once at startup; concurrent reads are safe without locking
// because no mutation happens after Registry is handed to the rest of the
// server.
type Registry struct {
	byID  map[string]*App
	byKey map[string]*App
}

// NewRegistry builds a Registry from a fixed set of app configs.
func NewRegistry(configs []Config) *Registry {
	r := &Registry{
		byID:  make(map[string]*App, len(configs)),
		byKey: make(map[string]*App, len(configs)),
	}
	for _, c := range configs {
		app := &App{
			ID:     c.ID,
			Key:    c.Key,
			Secret: c.Secret,
			Name:   c.Name,
			Channels: channel.NewRegistry(),
		}
		r.byID[c.ID] = app
		r.byKey[c.Key] = app
	}
	return r
}

// FindByID returns the app with the given id, or ErrAppIDNotFound.
func (r *Registry) FindByID(id string) (*App, error) {
	app, ok := r.byID[id]
	if !ok {
		return nil, ErrAppIDNotFound
	}
	return app, nil
}

// FindByKey returns the app with the given key, or ErrAppKeyNotFound.
func (r *Registry) FindByKey(key string) (*App, error) {
	app, ok := r.byKey[key]
	if !ok {
		return nil, ErrAppKeyNotFound
	}
	return app, nil
}

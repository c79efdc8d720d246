package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/timesheet-app/timesheet/internal/config"
)

// FactoryFunc builds a backend from the application configuration
type FactoryFunc func(*config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register makes a backend available to NewStorage under name
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStorage builds the backend registered under name.
func NewStorage(cfg *config.Config, name string) (Storage, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %q (registered: %s)", name, strings.Join(registered(), ", "))
	}
	return factory(cfg)
}

func registered() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

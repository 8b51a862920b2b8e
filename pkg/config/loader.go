package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	loaded  sync.Map // type name -> cached config value
	loadEnv sync.Once
	cacheMu sync.Mutex
)

// Load parses environment variables into the provided configuration struct.
// The default .env file is loaded once per process before the first parse;
// a missing .env file is not an error. Each configuration type is parsed at
// most once and cached, so repeated calls for the same type are cheap and
// always observe identical values.
//
//	type DispatchConfig struct {
//		MaxWorkers int `env:"DISPATCH_MAX_WORKERS" envDefault:"8"`
//	}
//
//	var cfg DispatchConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	loadEnv.Do(func() {
		_ = godotenv.Load()
	})

	key := typeName[T]()
	if cached, ok := loaded.Load(key); ok {
		*v = cached.(T)
		return nil
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()

	// Re-check under the lock so concurrent first loads parse once.
	if cached, ok := loaded.Load(key); ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	loaded.Store(key, *v)
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
// Use for configuration without which the process cannot start.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

func typeName[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}

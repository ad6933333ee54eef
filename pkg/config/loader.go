// Package config loads typed configuration structs from the environment.
//
// A .env file in the working directory is loaded once (missing files are
// ignored), then env tags are parsed with caarlos0/env. Each struct type is
// parsed once per process and cached, so packages can call Load for their own
// Config without coordinating with each other.
//
//	var cfg identity.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by configs that need checks beyond env tags.
// Validate runs once, right after parsing.
type Validator interface {
	Validate() error
}

type entry struct {
	once  sync.Once
	value any
	err   error
}

var (
	cacheMu sync.Mutex
	cache   = map[reflect.Type]*entry{}

	dotenvOnce sync.Once
)

// Load fills v from environment variables. The first successful parse of a
// given type is cached and returned to subsequent callers.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	typ := reflect.TypeOf(v).Elem()

	cacheMu.Lock()
	e, ok := cache[typ]
	if !ok {
		e = &entry{}
		cache[typ] = e
	}
	cacheMu.Unlock()

	e.once.Do(func() {
		var parsed T
		if err := env.Parse(&parsed); err != nil {
			e.err = errors.Join(ErrParsingConfig, err)
			return
		}
		if val, ok := any(&parsed).(Validator); ok {
			if err := val.Validate(); err != nil {
				e.err = errors.Join(ErrInvalidConfig, err)
				return
			}
		}
		e.value = parsed
	})

	if e.err != nil {
		// Drop the failed entry so a corrected environment can be retried.
		cacheMu.Lock()
		if cache[typ] == e {
			delete(cache, typ)
		}
		cacheMu.Unlock()
		return e.err
	}

	cached, ok := e.value.(T)
	if !ok {
		return ErrConfigNotLoaded
	}
	*v = cached
	return nil
}

// MustLoad works like Load but panics on failure. Use it for configuration
// the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

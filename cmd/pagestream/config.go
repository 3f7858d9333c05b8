package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cast"

	"github.com/autom8ter/pagestream"
	"github.com/autom8ter/pagestream/errors"
	"github.com/autom8ter/pagestream/internal/util"
	_ "github.com/autom8ter/pagestream/kv/badger"
	"github.com/autom8ter/pagestream/store/kvstore"
)

// StorageConfig selects a registered kv provider
type StorageConfig struct {
	Provider string         `json:"provider" validate:"required"`
	Params   map[string]any `json:"params"`
}

// QueryConfig is the query the engine is initialized with
type QueryConfig struct {
	Path      string         `json:"path" validate:"required"`
	SortField string         `json:"sortField" validate:"required"`
	Options   map[string]any `json:"options"`
}

// Config is the yaml (or json) configuration file of the pagestream commands
type Config struct {
	LogLevel     string        `json:"logLevel"`
	Owner        string        `json:"owner" validate:"required"`
	Port         int           `json:"port" validate:"gte=0,lte=65535"`
	FetchTimeout string        `json:"fetchTimeout"`
	Storage      StorageConfig `json:"storage"`
	Query        QueryConfig   `json:"query"`
	SearchFields []string      `json:"searchFields"`
	DateFields   []string      `json:"dateFields"`
	SchemaPath   string        `json:"schemaPath"`
}

// LoadConfig reads and validates the config file
func LoadConfig(path string) (*Config, error) {
	bits, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to read config: %s", path)
	}
	bits, err = util.YAMLToJSON(bits)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to parse config: %s", path)
	}
	cfg := &Config{
		LogLevel: "info",
		Port:     8080,
	}
	if err := json.Unmarshal(bits, cfg); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to decode config: %s", path)
	}
	if err := util.ValidateStruct(cfg); err != nil {
		return nil, errors.Wrap(err, 0, "invalid config: %s", path)
	}
	if _, err := cfg.fetchTimeout(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fetchTimeout() (time.Duration, error) {
	if c.FetchTimeout == "" {
		return pagestream.DefaultFetchTimeout, nil
	}
	timeout, err := cast.ToDurationE(c.FetchTimeout)
	if err != nil {
		return 0, errors.Wrap(err, errors.Validation, "invalid fetch timeout: %s", c.FetchTimeout)
	}
	return timeout, nil
}

// Logger returns a logger at the configured level tagged with the owner
func (c *Config) Logger() (pagestream.Logger, error) {
	return pagestream.NewLogger(c.LogLevel, map[string]any{
		"owner": c.Owner,
	})
}

// Open opens the configured store and returns an engine over it. The store must be closed by the caller
func (c *Config) Open(logger pagestream.Logger, registerer prometheus.Registerer) (*pagestream.Engine, *kvstore.Store, error) {
	timeout, err := c.fetchTimeout()
	if err != nil {
		return nil, nil, err
	}
	opts := []pagestream.Opt{
		pagestream.WithLogger(logger),
		pagestream.WithSearchFields(c.SearchFields...),
		pagestream.WithDateFields(c.DateFields...),
		pagestream.WithFetchTimeout(timeout),
		pagestream.WithMetrics(registerer),
	}
	if c.SchemaPath != "" {
		schema, err := os.ReadFile(c.SchemaPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.Validation, "failed to read schema: %s", c.SchemaPath)
		}
		if schema, err = util.YAMLToJSON(schema); err != nil {
			return nil, nil, errors.Wrap(err, errors.Validation, "failed to parse schema: %s", c.SchemaPath)
		}
		opts = append(opts, pagestream.WithDocumentSchema(schema))
	}
	s, err := kvstore.Open(c.Storage.Provider, c.Storage.Params)
	if err != nil {
		return nil, nil, err
	}
	e, err := pagestream.New(s, c.Owner, opts...)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return e, s, nil
}

// QueryOpts returns the configured query options
func (c *Config) QueryOpts() []pagestream.QueryOpt {
	if len(c.Query.Options) == 0 {
		return nil
	}
	return []pagestream.QueryOpt{pagestream.WithOptions(c.Query.Options)}
}

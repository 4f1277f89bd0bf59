// Package config loads geostore settings.
//
// Sources, later ones winning: the embedded CUE schema defaults, an optional
// .cue or .yaml file, and environment variables (a .env file in the working
// directory is loaded first). The merged result is checked against the
// schema once more, so overrides cannot slip past its constraints.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/geostore/internal/geoerr"
)

//go:embed schema.cue
var schemaCUE string

// Config is the full set of geostore settings.
type Config struct {
	Database    Database    `json:"database"`
	Redis       Redis       `json:"redis"`
	FeatureServ FeatureServ `json:"featureserv"`
	Repair      Repair      `json:"repair"`
	Limits      Limits      `json:"limits"`
	Log         Log         `json:"log"`
}

// Database selects the repository backend.
type Database struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	DSN    string `json:"dsn"`
}

// Redis configures the optional read cache. An empty Addr disables it.
type Redis struct {
	Addr       string `json:"addr"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// FeatureServ locates the pg_featureserv instance.
type FeatureServ struct {
	URL             string `json:"url"`
	BoundariesTable string `json:"boundariesTable"`
	TimeoutSeconds  int    `json:"timeoutSeconds"`
}

// Repair toggles geometry repair on save.
type Repair struct {
	Enabled bool `json:"enabled"`
}

// Limits caps result sizes.
type Limits struct {
	MaxGeostoresFoundByID int `json:"maxGeostoresFoundById"`
}

// Log configures the process logger.
type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Timeout returns the feature server request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.FeatureServ.TimeoutSeconds) * time.Second
}

// CacheTTL returns the Redis entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

// Loader reads configuration. The zero value reads ".env" and the process
// environment.
type Loader struct {
	// EnvFile is loaded before the environment is read. Missing files are
	// ignored. Default: ".env"
	EnvFile string

	// Getenv replaces os.Getenv, for tests.
	Getenv func(string) string
}

// Load reads configuration with the default Loader.
func Load(path string) (*Config, error) {
	return Loader{}.Load(path)
}

// Load merges the schema defaults, the file at path (if any) and the
// environment.
func (l Loader) Load(path string) (*Config, error) {
	envFile := l.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	value := schema
	if path != "" {
		file, err := compileFile(ctx, path)
		if err != nil {
			return nil, err
		}
		value = value.Unify(file)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, geoerr.InvalidArgument(fmt.Sprintf("config %s: %v", path, err))
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnv(&cfg, getenv)

	if err := validate(ctx, schema, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// compileFile turns a .cue or .yaml file into a CUE value.
func compileFile(ctx *cue.Context, path string) (cue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("read config: %w", err)
	}

	var v cue.Value
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		v = ctx.CompileBytes(data, cue.Filename(path))
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return cue.Value{}, geoerr.InvalidArgument(fmt.Sprintf("config %s: %v", path, err))
		}
		if doc == nil {
			doc = map[string]any{}
		}
		v = ctx.Encode(doc)
	default:
		return cue.Value{}, geoerr.InvalidArgument(
			fmt.Sprintf("config %s: unsupported extension, want .cue, .yaml or .yml", path))
	}

	if err := v.Err(); err != nil {
		return cue.Value{}, geoerr.InvalidArgument(fmt.Sprintf("config %s: %v", path, err))
	}
	return v, nil
}

// validate checks the merged struct against the schema and the rules the
// schema cannot express.
func validate(ctx *cue.Context, schema cue.Value, cfg *Config) error {
	merged := schema.Unify(ctx.Encode(cfg))
	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return geoerr.InvalidArgument(fmt.Sprintf("config: %v", err))
	}

	if cfg.Repair.Enabled && cfg.FeatureServ.URL == "" {
		return geoerr.InvalidArgument("config: repair.enabled requires featureserv.url")
	}
	if cfg.Database.Driver == DriverSQLite && cfg.Database.Path == "" {
		return geoerr.InvalidArgument("config: database.path required for sqlite")
	}
	return nil
}

// applyEnv overlays environment variables on cfg.
func applyEnv(cfg *Config, getenv func(string) string) {
	setString(&cfg.Database.Driver, getenv("GEOSTORE_DB_DRIVER"))
	setString(&cfg.Database.Path, getenv("GEOSTORE_DB_PATH"))
	setString(&cfg.Database.DSN, getenv("GEOSTORE_PG_DSN"))
	if cfg.Database.Driver == DriverPostgres && cfg.Database.DSN == "" {
		cfg.Database.DSN = PostgresDSN(getenv)
	}

	if addr := getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	} else if host := getenv("REDIS_HOST"); host != "" {
		port := getenv("REDIS_PORT")
		if port == "" {
			port = "6379"
		}
		cfg.Redis.Addr = host + ":" + port
	}
	setString(&cfg.Redis.Password, getenv("REDIS_PASS"))
	setInt(&cfg.Redis.DB, getenv("REDIS_DB"))

	setString(&cfg.FeatureServ.URL, getenv("FEATURESERV_URL"))
	setString(&cfg.FeatureServ.BoundariesTable, getenv("FEATURESERV_BOUNDARIES_TABLE"))
	if v, err := strconv.ParseBool(getenv("GEOSTORE_REPAIR")); err == nil {
		cfg.Repair.Enabled = v
	}

	setString(&cfg.Log.Level, strings.ToLower(getenv("LOG_LEVEL")))
	setString(&cfg.Log.Format, strings.ToLower(getenv("LOG_FORMAT")))
}

// PostgresDSN builds a connection URL from PG_HOST, PG_PORT, PG_USER,
// PG_PASSWORD, PG_DB and PG_SSLMODE.
func PostgresDSN(getenv func(string) string) string {
	host := or(getenv("PG_HOST"), "localhost")
	port := or(getenv("PG_PORT"), "5432")
	user := or(getenv("PG_USER"), "postgres")
	pass := getenv("PG_PASSWORD")
	db := or(getenv("PG_DB"), "geostore")
	ssl := or(getenv("PG_SSLMODE"), "disable")

	dsn := "postgres://" + user
	if pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + host + ":" + port + "/" + db + "?sslmode=" + ssl
	return dsn
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// setInt ignores values that do not parse.
func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/adapter"
	"github.com/m-mizutani/hindsight/pkg/repository"
	"github.com/m-mizutani/hindsight/pkg/usecase/memory"
	"github.com/m-mizutani/hindsight/pkg/usecase/profile"
	"github.com/m-mizutani/hindsight/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	configFile string

	logLevel  string
	logFormat string

	// Repository
	backend  string
	dbPath   string
	project  string
	database string

	// Gemini
	geminiAPIKey   string
	geminiProject  string
	geminiLocation string
	geminiModel    string
	embeddingModel string

	// Ingestion extras
	bucket    string
	policyDir string

	// Serve
	lockFile string
}

// fileConfig mirrors the optional YAML configuration file. File values sit
// below flags and environment variables in precedence.
type fileConfig struct {
	Backend  string `yaml:"backend"`
	DBPath   string `yaml:"db_path"`
	Project  string `yaml:"project"`
	Database string `yaml:"database"`

	Gemini struct {
		APIKey         string `yaml:"api_key"`
		Project        string `yaml:"project"`
		Location       string `yaml:"location"`
		Model          string `yaml:"model"`
		EmbeddingModel string `yaml:"embedding_model"`
	} `yaml:"gemini"`

	Bucket    string `yaml:"bucket"`
	PolicyDir string `yaml:"policy_dir"`
	LockFile  string `yaml:"lock_file"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML configuration file",
			Sources:     cli.EnvVars("HINDSIGHT_CONFIG"),
			Destination: &cfg.configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("HINDSIGHT_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("HINDSIGHT_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Storage backend (sqlite, firestore, memory)",
			Value:       "sqlite",
			Sources:     cli.EnvVars("HINDSIGHT_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "SQLite database path",
			Value:       "hindsight.db",
			Sources:     cli.EnvVars("HINDSIGHT_DB_PATH"),
			Destination: &cfg.dbPath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key (uses the Gemini API backend instead of Vertex AI)",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Generative model name",
			Sources:     cli.EnvVars("HINDSIGHT_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name",
			Sources:     cli.EnvVars("HINDSIGHT_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
	}
}

// ingestFlags returns flags for the retain pipeline extras
func ingestFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for archiving raw documents",
			Sources:     cli.EnvVars("HINDSIGHT_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies gating fact admission",
			Sources:     cli.EnvVars("HINDSIGHT_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// setup finalizes configuration after flag parsing: file values fill in
// anything not set by flag or environment, then logging is configured.
// Returns a context carrying the logger.
func (cfg *config) setup(ctx context.Context, c *cli.Command) (context.Context, error) {
	if cfg.configFile != "" {
		if err := cfg.applyFile(c); err != nil {
			return ctx, err
		}
	}

	logger := logging.New(cfg.logLevel, cfg.logFormat, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// applyFile merges the YAML file into cfg. A value set by flag or
// environment variable wins over the file.
func (cfg *config) applyFile(c *cli.Command) error {
	data, err := os.ReadFile(cfg.configFile)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configFile))
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configFile))
	}

	merge := func(flagName string, dst *string, fileValue string) {
		if fileValue != "" && !c.IsSet(flagName) {
			*dst = fileValue
		}
	}

	merge("backend", &cfg.backend, file.Backend)
	merge("db-path", &cfg.dbPath, file.DBPath)
	merge("project", &cfg.project, file.Project)
	merge("database", &cfg.database, file.Database)
	merge("gemini-api-key", &cfg.geminiAPIKey, file.Gemini.APIKey)
	merge("gemini-project", &cfg.geminiProject, file.Gemini.Project)
	merge("gemini-location", &cfg.geminiLocation, file.Gemini.Location)
	merge("gemini-model", &cfg.geminiModel, file.Gemini.Model)
	merge("embedding-model", &cfg.embeddingModel, file.Gemini.EmbeddingModel)
	merge("bucket", &cfg.bucket, file.Bucket)
	merge("policy-dir", &cfg.policyDir, file.PolicyDir)
	merge("lock-file", &cfg.lockFile, file.LockFile)
	merge("log-level", &cfg.logLevel, file.Log.Level)
	merge("log-format", &cfg.logFormat, file.Log.Format)

	return nil
}

// newRepository creates a repository instance for the configured backend
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	switch cfg.backend {
	case "sqlite":
		if cfg.dbPath == "" {
			return nil, goerr.New("db-path is required for the sqlite backend")
		}
		return repository.NewSQLite(cfg.dbPath)
	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required for the firestore backend")
		}
		if cfg.database == "" {
			return nil, goerr.New("database is required for the firestore backend")
		}
		return repository.NewFirestore(ctx, cfg.project, cfg.database)
	case "memory":
		return repository.NewMemory(), nil
	default:
		return nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}
}

// newGemini creates a Gemini adapter with transient-error retries
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	var opts []adapter.GeminiOption
	if cfg.geminiModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(cfg.geminiModel))
	}
	if cfg.embeddingModel != "" {
		opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
	}

	var client *adapter.GeminiClient
	var err error
	switch {
	case cfg.geminiAPIKey != "":
		client, err = adapter.NewGeminiWithAPIKey(ctx, cfg.geminiAPIKey, opts...)
	case cfg.geminiProject != "":
		client, err = adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
	default:
		return nil, goerr.New("gemini-api-key or gemini-project is required")
	}
	if err != nil {
		return nil, err
	}

	return adapter.NewRetryGemini(client, adapter.DefaultRetryPolicy()), nil
}

// newUseCases wires the profile and memory use cases from the configuration
func (cfg *config) newUseCases(ctx context.Context) (*profile.UseCase, *memory.UseCase, func(), error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		repo.Close()
		return nil, nil, nil, err
	}

	var memOpts []memory.Option
	if cfg.bucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			repo.Close()
			return nil, nil, nil, err
		}
		memOpts = append(memOpts, memory.WithStorage(storage))
	}
	if cfg.policyDir != "" {
		policy, err := memory.NewRetainPolicy(ctx, cfg.policyDir)
		if err != nil {
			repo.Close()
			return nil, nil, nil, err
		}
		memOpts = append(memOpts, memory.WithRetainPolicy(policy))
	}

	profiles := profile.New(repo, gemini)
	memories := memory.New(repo, gemini, profiles, memOpts...)
	cleanup := func() {
		if err := repo.Close(); err != nil {
			logging.From(ctx).Warn("failed to close repository", "error", err)
		}
	}
	return profiles, memories, cleanup, nil
}

package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mdp/qrterminal/v3"

	"github.com/formbotkit/formbot/internal/api"
	"github.com/formbotkit/formbot/internal/lockfile"
	"github.com/formbotkit/formbot/internal/store"
	"github.com/formbotkit/formbot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FormBot state data
	DefaultStateDir = "/var/lib/formbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "formbot.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// A file-based store shares state through the state directory, so only
	// one instance may use it at a time.
	if isFileBasedDSN(*flags.dbDSN) {
		lock, err := lockfile.AcquireLock(filepath.Dir(*flags.dbDSN))
		if err != nil {
			slog.Error("Failed to acquire state directory lock", "error", err)
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	st, err := openStore(flags)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// One-shot mode: print a form's share link as a terminal QR code.
	if *flags.shareQR != "" {
		if err := printShareQR(st, *flags.shareQR, *flags.baseURL, *flags.qrOutput); err != nil {
			slog.Error("Failed to print share QR code", "error", err, "formID", *flags.shareQR)
			os.Exit(1)
		}
		return
	}

	slog.Info("Bootstrapping FormBot API")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	srv := api.NewServer(st, buildAPIOptions(flags)...)
	if err := srv.Run(); err != nil {
		slog.Error("FormBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("FormBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	APIAddr     string
	APIKey      string
	BaseURL     string
}

// Flags holds command line flag values
type Flags struct {
	shareQR  *string
	qrOutput *string
	stateDir *string
	dbDSN    *string
	apiAddr  *string
	apiKey   *string
	baseURL  *string
}

// initializeLogger sets up structured logging. FORMBOT_DEBUG=true raises the
// level to debug.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("FORMBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("FORMBOT_STATE_DIR"),
		APIAddr:     os.Getenv("API_ADDR"),
		APIKey:      os.Getenv("FORMBOT_API_KEY"),
		BaseURL:     os.Getenv("FORMBOT_BASE_URL"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FORMBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("FORMBOT_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"FORMBOT_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"FORMBOT_API_KEY_SET", config.APIKey != "",
		"FORMBOT_BASE_URL", config.BaseURL)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		shareQR:  flag.String("share-qr", "", "print the share link of the given form id as a QR code and exit"),
		qrOutput: flag.String("qr-output", "", "path to write the share QR code instead of stdout"),
		stateDir: flag.String("state-dir", config.StateDir, "state directory for FormBot data (overrides $FORMBOT_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN for the form store (overrides $DATABASE_URL)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		apiKey:   flag.String("api-key", config.APIKey, "API key guarding authoring endpoints (overrides $FORMBOT_API_KEY)"),
		baseURL:  flag.String("base-url", config.BaseURL, "externally visible URL prefix for share links (overrides $FORMBOT_BASE_URL)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"shareQR", *flags.shareQR,
		"qrOutput", *flags.qrOutput,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"apiKeySet", *flags.apiKey != "",
		"baseURL", *flags.baseURL)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// isFileBasedDSN reports whether the DSN names a SQLite database file rather
// than a server connection.
func isFileBasedDSN(dsn string) bool {
	return dsn != "" && !strings.Contains(dsn, "postgres://") && !strings.Contains(dsn, "host=")
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if isFileBasedDSN(*flags.dbDSN) {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
		slog.Debug("State directory created successfully", "state_dir", stateDir)
	}
	return nil
}

// openStore builds the store backend implied by the DSN.
func openStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.apiKey != "" {
		apiOpts = append(apiOpts, api.WithAPIKey(*flags.apiKey))
	}
	if *flags.baseURL != "" {
		apiOpts = append(apiOpts, api.WithBaseURL(*flags.baseURL))
	}
	return apiOpts
}

// printShareQR issues (or fetches) the form's share link and renders it as a
// terminal QR code.
func printShareQR(st store.Store, formID, baseURL, qrOutput string) error {
	token, err := st.CreateShareLink(formID)
	if err != nil {
		return err
	}
	if baseURL == "" {
		baseURL = "http://localhost" + api.DefaultAddr
	}
	shareURL := strings.TrimSuffix(baseURL, "/") + "/shared/" + token

	var writer io.Writer = os.Stdout
	if qrOutput != "" {
		f, err := os.Create(qrOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		writer = f
	}

	fmt.Fprintln(writer, shareURL)
	qrterminal.GenerateHalfBlock(shareURL, qrterminal.L, writer)
	slog.Info("Share link QR generated", "formID", formID, "url", shareURL)
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/zaytech/snapstore/internal/auth"
	"github.com/zaytech/snapstore/internal/commerce"
	"github.com/zaytech/snapstore/internal/httpapi"
	"github.com/zaytech/snapstore/internal/store/gormstore"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagAllowedOrigins  = "allowed-origins"
	flagJWTSigningKey   = "jwt-signing-key"
	flagJWTIssuer       = "jwt-issuer"
	flagAccessTokenTTL  = "access-token-ttl"
	flagRefreshTokenTTL = "refresh-token-ttl"
	flagSellerUsername  = "username"
	flagSellerName      = "name"
	flagSellerEmail     = "email"
	flagSellerPassword  = "password"
	flagSellerAdmin     = "admin"
	envPrefix           = "SNAPSTORE"
	defaultDatabaseURL  = "sqlite:///tmp/snapstore.db"
)

type runtimeConfig struct {
	DatabaseURL string
	API         httpapi.Config
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "snapstored: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "snapstored",
		Short:         "Snapstore dashboard API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.PersistentFlags().String(flagDatabaseURL, defaultDatabaseURL, "database connection string (sqlite path or postgres URL)")
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "", "JWT issuer")
	cmd.Flags().Duration(flagAccessTokenTTL, 0, "access token lifetime (e.g. 15m)")
	cmd.Flags().Duration(flagRefreshTokenTTL, 0, "refresh token lifetime (e.g. 720h)")

	cmd.AddCommand(newAddSellerCommand(cfg))

	return cmd
}

func newAddSellerCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "add-seller",
		Short:         "Create a seller account",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDatabaseURL(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString(flagSellerUsername)
			name, _ := cmd.Flags().GetString(flagSellerName)
			email, _ := cmd.Flags().GetString(flagSellerEmail)
			password, _ := cmd.Flags().GetString(flagSellerPassword)
			isAdmin, _ := cmd.Flags().GetBool(flagSellerAdmin)
			if username == "" || password == "" {
				return fmt.Errorf("username and password are required")
			}
			return addSeller(cmd.Context(), cfg, username, name, email, password, isAdmin)
		},
	}

	cmd.Flags().String(flagSellerUsername, "", "login username (required)")
	cmd.Flags().String(flagSellerName, "", "display name")
	cmd.Flags().String(flagSellerEmail, "", "contact email")
	cmd.Flags().String(flagSellerPassword, "", "login password (required)")
	cmd.Flags().Bool(flagSellerAdmin, false, "grant admin rights")

	return cmd
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func loadDatabaseURL(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := newConfigViper()
	if err := v.BindPFlag(flagDatabaseURL, cmd.Flags().Lookup(flagDatabaseURL)); err != nil {
		return err
	}
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	return nil
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := newConfigViper()

	for _, flagName := range []string{flagDatabaseURL, flagListenAddr, flagAllowedOrigins, flagJWTSigningKey, flagJWTIssuer, flagAccessTokenTTL, flagRefreshTokenTTL} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.API.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.API.AllowedOrigins = httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.API.JWTSigningKey = v.GetString(flagJWTSigningKey)
	cfg.API.JWTIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
	cfg.API.AccessTokenTTL = v.GetDuration(flagAccessTokenTTL)
	cfg.API.RefreshTokenTTL = v.GetDuration(flagRefreshTokenTTL)

	return cfg.API.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	service, err := commerce.NewService(store,
		commerce.WithOperationLogger(commerce.NewZapOperationLogger(logger)))
	if err != nil {
		return fmt.Errorf("commerce service init: %w", err)
	}

	managerOptions := []auth.ManagerOption{}
	if cfg.API.AccessTokenTTL > 0 {
		managerOptions = append(managerOptions, auth.WithAccessTokenTTL(cfg.API.AccessTokenTTL))
	}
	if cfg.API.RefreshTokenTTL > 0 {
		managerOptions = append(managerOptions, auth.WithRefreshTokenTTL(cfg.API.RefreshTokenTTL))
	}
	sessions, err := auth.NewManager(cfg.API.JWTSigningKey, cfg.API.JWTIssuer, store, managerOptions...)
	if err != nil {
		return fmt.Errorf("session manager init: %w", err)
	}

	return httpapi.Run(ctx, cfg.API, service, sessions, logger)
}

func addSeller(ctx context.Context, cfg *runtimeConfig, username, name, email, password string, isAdmin bool) error {
	store, cleanup, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	seller := commerce.Seller{
		Username:     username,
		Name:         name,
		Email:        email,
		PasswordHash: string(passwordHash),
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateSeller(ctx, seller); err != nil {
		return fmt.Errorf("create seller: %w", err)
	}
	fmt.Printf("seller %q created\n", username)
	return nil
}

func openStore(ctx context.Context, dsn string) (*gormstore.Store, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }

	store := gormstore.New(db.WithContext(ctx))
	if driver == "sqlite" {
		if err := store.Migrate(); err != nil {
			_ = cleanup()
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return store, cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "snapstore.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

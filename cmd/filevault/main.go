package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"filevault/internal/auth"
	"filevault/internal/storage"
	"filevault/internal/vault"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           "filevault",
		Short:         "Deduplicating file vault HTTP service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	initFlags()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Filevault exited with error", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("filevault")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "filevault"))
		}
	}
	viper.SetEnvPrefix("FILEVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		}
	}
}

func bindConfig(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func initFlags() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML or YAML)")

	rootCmd.Flags().String("listen", ":9000", "HTTP listen address")
	rootCmd.Flags().String("data-dir", "./data", "directory for metadata and stored payloads")
	rootCmd.Flags().Int64("max-file-size", 64<<20, "largest accepted file in bytes")
	rootCmd.Flags().String("secret-key", "", "key used to sign bearer tokens")
	rootCmd.Flags().Duration("token-ttl", time.Hour, "bearer token lifetime")
	rootCmd.Flags().StringArray("account", nil, "account as email:password (repeatable)")
	rootCmd.Flags().Float64("rate-limit", 2, "requests per second per caller and endpoint (0 disables)")
	rootCmd.Flags().Int("rate-burst", 5, "rate limit burst size")

	rootCmd.Flags().String("storage", "local", "payload storage engine: local|s3")
	rootCmd.Flags().String("s3-endpoint", "", "S3 endpoint host")
	rootCmd.Flags().String("s3-bucket", "filevault", "S3 bucket for payloads")
	rootCmd.Flags().String("s3-access-key", "", "S3 access key")
	rootCmd.Flags().String("s3-secret-key", "", "S3 secret key")
	rootCmd.Flags().Bool("s3-use-ssl", true, "use TLS for S3 connections")

	bindConfig("listen", rootCmd.Flags().Lookup("listen"))
	bindConfig("data_dir", rootCmd.Flags().Lookup("data-dir"))
	bindConfig("max_file_size", rootCmd.Flags().Lookup("max-file-size"))
	bindConfig("secret_key", rootCmd.Flags().Lookup("secret-key"))
	bindConfig("token_ttl", rootCmd.Flags().Lookup("token-ttl"))
	bindConfig("account", rootCmd.Flags().Lookup("account"))
	bindConfig("rate_limit", rootCmd.Flags().Lookup("rate-limit"))
	bindConfig("rate_burst", rootCmd.Flags().Lookup("rate-burst"))

	bindConfig("storage", rootCmd.Flags().Lookup("storage"))
	bindConfig("s3_endpoint", rootCmd.Flags().Lookup("s3-endpoint"))
	bindConfig("s3_bucket", rootCmd.Flags().Lookup("s3-bucket"))
	bindConfig("s3_access_key", rootCmd.Flags().Lookup("s3-access-key"))
	bindConfig("s3_secret_key", rootCmd.Flags().Lookup("s3-secret-key"))
	bindConfig("s3_use_ssl", rootCmd.Flags().Lookup("s3-use-ssl"))
}

// buildAccounts parses the repeatable account flag into a populated store.
func buildAccounts(entries []string) (*auth.AccountStore, error) {
	accounts := auth.NewAccountStore()

	for _, entry := range entries {
		email, password, found := strings.Cut(entry, ":")
		if !found || email == "" || password == "" {
			return nil, fmt.Errorf("invalid account %q, expected email:password", entry)
		}
		if err := accounts.Add(email, password); err != nil {
			return nil, fmt.Errorf("add account %s: %w", email, err)
		}
	}

	return accounts, nil
}

func buildStorageEngine(ctx context.Context) (storage.Engine, error) {
	switch strings.ToLower(viper.GetString("storage")) {
	case "", "local":
		// nil makes the server use local payload storage under the data dir.
		return nil, nil
	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:  viper.GetString("s3_endpoint"),
			AccessKey: viper.GetString("s3_access_key"),
			SecretKey: viper.GetString("s3_secret_key"),
			Bucket:    viper.GetString("s3_bucket"),
			UseSSL:    viper.GetBool("s3_use_ssl"),
		})
	default:
		return nil, fmt.Errorf("unknown storage engine %q", viper.GetString("storage"))
	}
}

func run(ctx context.Context) error {

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.DebugLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	absDataDir, err := filepath.Abs(viper.GetString("data_dir"))
	if err != nil {
		return fmt.Errorf("failed to resolve data directory: %w", err)
	}

	accounts, err := buildAccounts(viper.GetStringSlice("account"))
	if err != nil {
		return err
	}

	engine, err := buildStorageEngine(ctx)
	if err != nil {
		return fmt.Errorf("failed to configure storage engine: %w", err)
	}

	cfg := vault.NewConfig(
		vault.WithDataDir(absDataDir),
		vault.WithMaxFileSize(viper.GetInt64("max_file_size")),
		vault.WithSecretKey(viper.GetString("secret_key")),
		vault.WithTokenTTL(viper.GetDuration("token_ttl")),
		vault.WithStorageEngine(engine),
		vault.WithAccounts(accounts),
		vault.WithRateLimit(viper.GetFloat64("rate_limit"), viper.GetInt("rate_burst")),
	)

	server, err := vault.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create vault server: %w", err)
	}

	defer server.Close()

	httpServer := &http.Server{
		Addr:              viper.GetString("listen"),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting Filevault HTTP server", "addr", httpServer.Addr, "data_dir", absDataDir)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("Filevault Started")
	return eg.Wait()
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vidshare/backend/internal/config"
	"github.com/vidshare/backend/internal/httpserver"
	"github.com/vidshare/backend/internal/logging"
	"github.com/vidshare/backend/internal/uploader"
)

const migrateTimeout = 30 * time.Second

// Run bootstraps the VidShare backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or upload")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return migrate(ctx)
	case "upload":
		return upload(ctx, args[1:], os.Stdout, os.Stderr)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func setup(ctx context.Context) (context.Context, config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return ctx, config.Config{}, nil, err
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)
	return logging.WithLogger(ctx, logger), cfg, logger, nil
}

func serve(ctx context.Context) error {
	ctx, cfg, logger, err := setup(ctx)
	if err != nil {
		return err
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			logger.Warn("close database connection", "error", err)
		}
	}()

	handler, err := buildHandler(ctx, cfg, st, logger)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.AppPort, handler)
	logger.Info("starting http server", "port", cfg.AppPort, "backend", string(st.backend))
	return srv.Serve(ctx)
}

// migrate dials the database once so the schema and indexes are created
// ahead of the first request.
func migrate(ctx context.Context) error {
	ctx, cfg, logger, err := setup(ctx)
	if err != nil {
		return err
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()
	if err := st.connect(connectCtx); err != nil {
		return fmt.Errorf("initialise %s schema: %w", st.backend, err)
	}
	logger.Info("schema ready", "backend", string(st.backend))

	return st.close(context.Background())
}

// upload runs the client-side uploader against a running server and prints
// the stored file as JSON.
func upload(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", envOr("VIDSHARE_SERVER_URL", "http://localhost:8080"), "base URL of the VidShare server")
	token := fs.String("token", os.Getenv("VIDSHARE_TOKEN"), "session token sent as a bearer credential")
	fileType := fs.String("type", string(uploader.FileTypeVideo), "file type: image or video")
	folder := fs.String("folder", "", "destination folder on the media host")
	maxBytes := fs.Int64("max-bytes", 0, "size cap in bytes; 0 uses the default for the file type")
	quiet := fs.Bool("quiet", false, "suppress progress output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: vidshare upload [flags] FILE")
	}

	kind, err := uploader.ParseFileType(*fileType)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	up := &uploader.Uploader{
		Credentials: uploader.ServerCredentials{
			Endpoint: strings.TrimSuffix(*server, "/") + "/api/auth/imagekit-auth",
			Token:    *token,
		},
		Folder: *folder,
	}
	if !*quiet {
		up.OnProgress = func(fraction float64) {
			fmt.Fprintf(stderr, "\ruploading %3.0f%%", fraction*100)
			if fraction >= 1 {
				fmt.Fprintln(stderr)
			}
		}
	}

	result, err := up.UploadFile(ctx, uploader.Policy{FileType: kind, MaxSizeBytes: *maxBytes}, fs.Arg(0))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"yatube/internal/app"
	"yatube/internal/cache"
	"yatube/internal/db"
	httpx "yatube/internal/http"
	"yatube/internal/media"
	"yatube/internal/models"
	"yatube/internal/store"
	"yatube/internal/store/memory"
	"yatube/internal/store/postgres"
)

func main() {
	cfg := app.LoadConfig()
	log := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	app.Must(log, err)
	defer st.Close()
	app.Must(log, seedGroups(ctx, st, cfg.SeedGroups, log))

	c, err := openCache(ctx, cfg, log)
	app.Must(log, err)

	m, err := openMedia(cfg, log)
	app.Must(log, err)

	srv, err := httpx.NewServer(cfg, httpx.Deps{Store: st, Cache: c, Media: m, Log: log})
	app.Must(log, err)

	go srv.Auth.RunCleanup(ctx, cfg.SessionCleanup)
	if srv.Limiter != nil {
		go srv.Limiter.Run(ctx, time.Minute, 10*time.Minute)
	}

	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdown); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	log.WithField("addr", cfg.Addr).Info("listening")
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("serve")
	}
	log.Info("stopped")
}

func openStore(ctx context.Context, cfg app.Config, log *logrus.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return memory.New(), nil
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(d); err != nil {
		_ = d.Close()
		return nil, err
	}
	log.Info("postgres ready")
	return postgres.New(d), nil
}

func openCache(ctx context.Context, cfg app.Config, log *logrus.Logger) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	log.WithField("addr", cfg.RedisAddr).Info("page cache on redis")
	return cache.NewRedis(client, "yatube:"), nil
}

func openMedia(cfg app.Config, log *logrus.Logger) (media.Store, error) {
	if cfg.S3Bucket == "" {
		return media.NewDisk(cfg.MediaDir, cfg.MediaURL), nil
	}
	log.WithField("bucket", cfg.S3Bucket).Info("media on s3")
	return media.NewS3(cfg.S3Bucket, cfg.S3Region, cfg.S3PublicURL)
}

// seedGroups creates the groups listed in spec ("slug:Title;slug:Title").
// Groups that already exist are left alone, so restarts are harmless. With
// the in-memory store this is the only way to get groups.
func seedGroups(ctx context.Context, st store.GroupStore, spec string, log logrus.FieldLogger) error {
	for _, item := range strings.Split(spec, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		slug, title, ok := strings.Cut(item, ":")
		slug, title = strings.TrimSpace(slug), strings.TrimSpace(title)
		if !ok || slug == "" || title == "" {
			return fmt.Errorf("SEED_GROUPS: bad entry %q, want slug:Title", item)
		}
		g, err := st.CreateGroup(ctx, models.Group{Slug: slug, Title: title})
		switch {
		case errors.Is(err, store.ErrConflict):
			continue
		case err != nil:
			return fmt.Errorf("seed group %q: %w", slug, err)
		}
		log.WithField("slug", g.Slug).Info("group created")
	}
	return nil
}

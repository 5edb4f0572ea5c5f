package main

import (
	"context"
	"flag"

	log "github.com/sirupsen/logrus"

	"taskflow-api/config"
	"taskflow-api/storage"
)

// storage-init provisions the task and category tables and the change queue
// ahead of the first deployment.
func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "taskflow-api configuration file")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.Storage.Backend != config.BackendTables {
		log.Infof("storage backend is %q; nothing to provision", cfg.Storage.Backend)
		return
	}
	log.Info("storage init starting")

	ctx := context.Background()
	ts, err := storage.NewTableStore(cfg.Storage.ConnectionString, map[string]string{
		storage.CollectionTasks:      cfg.Storage.TasksTable,
		storage.CollectionCategories: cfg.Storage.CategoriesTable,
	})
	if err != nil {
		log.Fatalf("table service: %v", err)
	}
	if err := ts.EnsureTables(ctx); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	if cfg.Storage.ChangeQueue != "" {
		q, err := storage.NewChangeQueue(cfg.Storage.ConnectionString, cfg.Storage.ChangeQueue)
		if err != nil {
			log.Fatalf("queue service: %v", err)
		}
		if err := q.EnsureQueue(ctx); err != nil {
			log.Fatalf("create queue: %v", err)
		}
	}

	log.Info("storage init complete")
}

package main

import (
	"context"
	"flag"
	"html-loader/internal/config"
	"html-loader/internal/loader"
	"html-loader/internal/page"
	"html-loader/internal/storage"
	"html-loader/pkg/models"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Flags override the environment (./loader -devtools=ws://127.0.0.1:9222/devtools/browser/<id> -watch)
	devtools := flag.String("devtools", cfg.DevToolsURL, "DevTools URL of a running browser (empty launches one)")
	tab := flag.String("tab", "", "Target ID of the tab to capture (default: active tab)")
	watch := flag.Bool("watch", false, "Keep running and capture on every SIGUSR1")
	headless := flag.Bool("headless", cfg.Headless, "Launch the browser headless")
	startURL := flag.String("url", cfg.StartURL, "Page to open when launching the browser")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browserCfg := page.BrowserConfig{
		DevToolsURL: *devtools,
		Headless:    *headless,
		StartURL:    *startURL,
		DownloadDir: cfg.DownloadDir,
	}
	if *devtools == "" {
		// We own this browser and close it on exit, so wait for each file
		// to land, by default in the working directory.
		browserCfg.WaitForDownload = true
		if browserCfg.DownloadDir == "" {
			wd, err := os.Getwd()
			if err != nil {
				log.Fatalf("Could not resolve download directory: %v", err)
			}
			browserCfg.DownloadDir = wd
		}
	}

	exec, err := page.NewCDPExecutor(ctx, browserCfg)
	if err != nil {
		log.Fatalf("Could not reach browser: %v", err)
	}
	defer exec.Close()

	opts := []loader.Option{}
	if cfg.ArchiveEnabled() {
		db, err := storage.WaitForDB(cfg.DatabaseURL, 10, 2*time.Second)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()

		store := storage.NewStorage(db)
		if err := store.EnsureSchema(); err != nil {
			log.Fatalf("Could not create captures table: %v", err)
		}
		archive := store.StartCaptureArchive(cfg.ArchiveBatchSize, cfg.ArchiveFlush)
		defer archive.Close()
		opts = append(opts, loader.WithRecorder(archive))
	}

	handler := loader.NewHandler(exec, opts...)
	target := models.TabID(*tab)

	if !*watch {
		handler.Run(ctx, loader.Once(target))
		return
	}

	what := "active tab"
	if target != "" {
		what = "tab " + string(target)
	}
	log.Printf("Watching: send SIGUSR1 (kill -USR1 %d) to capture the %s", os.Getpid(), what)
	handler.Run(ctx, loader.OnSignal(ctx, target, syscall.SIGUSR1))
	log.Println("Shutting down")
}

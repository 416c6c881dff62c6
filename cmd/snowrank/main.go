package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/snowrank/snowrank/internal/app"
	"github.com/snowrank/snowrank/internal/log"
	"github.com/snowrank/snowrank/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to YAML configuration file")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	runOnce := flag.Bool("run-once", false, "Execute a single pipeline run and exit")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("snowrank %s\n", version)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	filename, _ := filepath.Abs(*cfgFile)
	cfg, err := config.Load(filename)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	application := app.New(cfg, log.GetSugaredLogger())
	if err := application.Run(context.Background(), *runOnce); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cghttpd/config"
	"cghttpd/server"
)

var (
	configPath string
	port       int
	dir        string
	savePath   string
)

func main() {

	flag.StringVar(&configPath, "c", "", "Configuration file (YAML)")
	flag.IntVar(&port, "p", 0, "Server port, overrides the configuration")
	flag.StringVar(&dir, "d", "", "Directory to serve, overrides the configuration")
	flag.StringVar(&savePath, "save", "", "Write the effective configuration to this file and exit")
	flag.Parse()

	cfg, err := loadConfig(configPath, port, dir)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	if savePath != "" {
		if err := cfg.Save(savePath); err != nil {
			log.Fatalf("Error: %v", err)
		}
		log.Printf("Configuration written to %s", savePath)
		return
	}

	srv := server.New(cfg)
	go func() {
		for e := range srv.Events() {
			log.Printf("Event: %s", e)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Printf("Received %s, shutting down", sig)
		if err := srv.Close(); err != nil {
			log.Printf("Error closing server: %v", err)
		}
	}()

	log.Printf("Serving %s on %s:%d, default action %s", cfg.DocumentRoot(), cfg.ListenAddress(), cfg.Port(), cfg.DefaultAction())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
		log.Fatalf("Error: %v", err)
	}
}

// loadConfig reads the configuration file, if any, applies the command line
// overrides and checks that the document root is a directory.
func loadConfig(path string, port int, dir string) (*config.Store, error) {
	cfg := config.NewStore()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if port != 0 {
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port %d", port)
		}
		cfg.SetPort(port)
	}
	if dir != "" {
		cfg.SetDocumentRoot(dir)
	}

	fi, err := os.Stat(cfg.DocumentRoot())
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("directory %s not exist", cfg.DocumentRoot())
	} else if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.DocumentRoot())
	}
	return cfg, nil
}

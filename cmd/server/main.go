// Command server runs the rbacflow HTTP API.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/simp-lee/rbacflow/internal/app"
	"github.com/simp-lee/rbacflow/internal/config"
)

const configEnv = "RBACFLOW_CONFIG"

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file (env "+configEnv+")")
	check := flag.Bool("check", false, "validate the configuration and exit")
	flag.Parse()

	if err := run(*configPath, *check, os.Stdout); err != nil {
		slog.Error("rbacflow stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func run(configPath string, checkOnly bool, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	if checkOnly {
		_, err := fmt.Fprintf(out, "config ok: mode=%s addr=%s:%d driver=%s\n",
			cfg.Server.Mode, cfg.Server.Host, cfg.Server.Port, cfg.Database.Driver)
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return a.Run()
}

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/forPelevin/text2splat/internal/config"
	"github.com/forPelevin/text2splat/internal/logging"
	"github.com/forPelevin/text2splat/internal/pipeline"
)

// configFileEnv points at an explicit settings file.
const configFileEnv = "TEXT2SPLAT_CONFIG"

func loadConfig(prompt string) (pipeline.Config, error) {
	s, err := config.Load(os.Getenv(configFileEnv))
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("config: %w", err)
	}
	log := logging.New(s.LogLevel, s.LogFormat)

	cfg := pipeline.FromSettings(s, prompt)
	cfg.Log = &log
	cfg.Summary = os.Stderr
	return cfg, nil
}

func runViews(ctx context.Context, prompt string) error {
	cfg, err := loadConfig(prompt)
	if err != nil {
		return err
	}
	_, err = pipeline.RunViews(ctx, cfg)
	return err
}

func runSplat(ctx context.Context, prompt string) error {
	cfg, err := loadConfig(prompt)
	if err != nil {
		return err
	}
	if len(cfg.ViewsCommand) == 0 {
		cfg.ViewsCommand = pipeline.DefaultViewsCommand()
	}
	_, err = pipeline.RunSplat(ctx, cfg)
	return err
}

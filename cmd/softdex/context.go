package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"softdex/internal/api"
	"softdex/internal/catalog"
	"softdex/internal/config"
	"softdex/internal/installs"
	"softdex/internal/logging"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, apiFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// commandLogger writes to the log file, and to stderr as well with --verbose.
func (c *commandContext) commandLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		outputs := []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)}
		if c.verbose != nil && *c.verbose {
			outputs = append(outputs, "stderr")
		}
		logger, err := logging.New(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Outputs: outputs,
		})
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// stores holds both databases open for the duration of one command.
type stores struct {
	catalog  *catalog.Store
	installs *installs.Store
}

func (s *stores) Close() {
	if s == nil {
		return
	}
	if s.installs != nil {
		_ = s.installs.Close()
	}
	if s.catalog != nil {
		_ = s.catalog.Close()
	}
}

func (c *commandContext) openStores(ctx context.Context) (*stores, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.commandLogger()
	if err != nil {
		return nil, err
	}
	catalogStore, err := catalog.Open(ctx, cfg.Paths.CatalogPath, catalog.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	installStore, err := installs.Open(ctx, cfg.Paths.LocalPath, installs.WithLogger(logger))
	if err != nil {
		_ = catalogStore.Close()
		return nil, fmt.Errorf("open installations: %w", err)
	}
	return &stores{catalog: catalogStore, installs: installStore}, nil
}

func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimSpace(*c.apiFlag)
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.Paths.APIBind
	}
	return ""
}

func (c *commandContext) apiClient() (*api.Client, error) {
	var token string
	if cfg := c.configValue(); cfg != nil {
		token = cfg.Paths.APIToken
	}
	client, err := api.NewClient(c.apiAddress(), token)
	if err != nil {
		return nil, fmt.Errorf("daemon api address: %w", err)
	}
	if client == nil {
		return nil, errors.New("daemon api address is not configured; set paths.api_bind or pass --api")
	}
	return client, nil
}

func wrapAPIError(err error, addr string) error {
	if api.IsAPIUnavailable(err) {
		return fmt.Errorf("connect to daemon at %s: not reachable; start it with `softdex daemon`", addr)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

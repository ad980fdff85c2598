package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must be set")
	}
	if strings.TrimSpace(c.Server.Bind) == "" {
		problems = append(problems, "server.bind must be set")
	}
	if strings.TrimSpace(c.Server.BaseURL) == "" {
		problems = append(problems, "server.base_url must be set for step chaining")
	}
	if c.Server.DispatchTimeout <= 0 {
		problems = append(problems, "server.dispatch_timeout must be positive")
	}
	if c.Workflow.RecoveryInterval <= 0 {
		problems = append(problems, "workflow.recovery_interval must be positive")
	}
	if c.Workflow.RecoveryMinAge <= 0 {
		problems = append(problems, "workflow.recovery_min_age must be positive")
	}
	if c.Workflow.MonitorInterval <= 0 {
		problems = append(problems, "workflow.monitor_interval must be positive")
	}
	if c.Workflow.AlertBatchSize <= 0 {
		problems = append(problems, "workflow.alert_batch_size must be positive")
	}
	if c.Feeds.RequestTimeout <= 0 {
		problems = append(problems, "feeds.request_timeout must be positive")
	}
	if c.Feeds.MaxPostsPerRun <= 0 {
		problems = append(problems, "feeds.max_posts_per_run must be positive")
	}
	if c.Feeds.ExtractWindow <= 0 {
		problems = append(problems, "feeds.extract_window must be positive")
	}
	if c.Generation.PostsPerSection <= 0 {
		problems = append(problems, "generation.posts_per_section must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported (console, json)", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Quote    QuoteConfig    `mapstructure:"quote"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Manager  ManagerConfig  `mapstructure:"manager"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BridgeConfig 描述券商终端桥接服务的连接信息。
type BridgeConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Account string        `mapstructure:"account"`
}

// QuoteConfig 控制行情轮询节奏。
type QuoteConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// DispatchConfig 控制委托状态轮询节奏。
type DispatchConfig struct {
	StatusPollInterval time.Duration `mapstructure:"status_poll_interval"`
	CancelRetryDelay   time.Duration `mapstructure:"cancel_retry_delay"`
	CancelMaxRetries   int           `mapstructure:"cancel_max_retries"`
}

// ManagerConfig 控制超时撤单策略。
type ManagerConfig struct {
	CancelCheckInterval time.Duration `mapstructure:"cancel_check_interval"`
	CancelAfter         time.Duration `mapstructure:"cancel_after"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Bridge.BaseURL == "" {
		err = multierr.Append(err, errors.New("bridge.base_url 不能为空"))
	}
	if c.Bridge.Timeout <= 0 {
		err = multierr.Append(err, errors.New("bridge.timeout 必须大于0"))
	}
	if c.Quote.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("quote.poll_interval 必须大于0"))
	}
	if c.Quote.BatchSize <= 0 {
		err = multierr.Append(err, errors.New("quote.batch_size 必须大于0"))
	}
	if c.Dispatch.StatusPollInterval <= 0 {
		err = multierr.Append(err, errors.New("dispatch.status_poll_interval 必须大于0"))
	}
	if c.Dispatch.CancelRetryDelay <= 0 {
		err = multierr.Append(err, errors.New("dispatch.cancel_retry_delay 必须大于0"))
	}
	if c.Dispatch.CancelMaxRetries <= 0 {
		err = multierr.Append(err, errors.New("dispatch.cancel_max_retries 必须大于0"))
	}
	if c.Manager.CancelCheckInterval <= 0 {
		err = multierr.Append(err, errors.New("manager.cancel_check_interval 必须大于0"))
	}
	if c.Manager.CancelAfter <= 0 {
		err = multierr.Append(err, errors.New("manager.cancel_after 必须大于0"))
	}
	if c.Manager.CancelAfter < c.Dispatch.StatusPollInterval {
		err = multierr.Append(err, errors.New("manager.cancel_after 不应小于 dispatch.status_poll_interval"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

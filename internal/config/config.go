// Package config loads runtime configuration from a file, environment
// variables and CLI flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rogers-f/deliberate/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. DELIBERATE_DB_PATH.
const EnvPrefix = "DELIBERATE"

// AgentConfig selects and tunes the model behind one agent. Empty fields
// inherit from Config.Default.
type AgentConfig struct {
	Provider     string   `mapstructure:"provider"`
	Model        string   `mapstructure:"model"`
	APIKey       string   `mapstructure:"api_key"`
	BaseURL      string   `mapstructure:"base_url"`
	Temperature  *float64 `mapstructure:"temperature"`
	MaxTokens    int      `mapstructure:"max_tokens"`
	SystemPrompt string   `mapstructure:"system_prompt"`
	// RetryLimit applies to planner, researcher and expert only.
	RetryLimit *int `mapstructure:"retry_limit"`
}

// Agents holds per-role model settings.
type Agents struct {
	Planner    AgentConfig `mapstructure:"planner"`
	Researcher AgentConfig `mapstructure:"researcher"`
	Expert     AgentConfig `mapstructure:"expert"`
	Critic     AgentConfig `mapstructure:"critic"`
	Finalizer  AgentConfig `mapstructure:"finalizer"`
}

// ToolsConfig configures the researcher and expert tools.
type ToolsConfig struct {
	TavilyAPIKey  string        `mapstructure:"tavily_api_key"`
	FilesRoot     string        `mapstructure:"files_root"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	MaxIterations int           `mapstructure:"max_iterations"`
}

// RateLimitConfig throttles model calls per provider client.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config holds the orchestrator's runtime configuration.
type Config struct {
	Default          AgentConfig     `mapstructure:"default"`
	Agents           Agents          `mapstructure:"agents"`
	DBPath           string          `mapstructure:"db_path"`
	MaxSteps         int             `mapstructure:"max_steps"`
	RunTimeout       time.Duration   `mapstructure:"run_timeout"`
	LLMTimeout       time.Duration   `mapstructure:"llm_timeout"`
	Tools            ToolsConfig     `mapstructure:"tools"`
	RateLimit        RateLimitConfig `mapstructure:"rate_limit"`
	ListenAddr       string          `mapstructure:"listen_addr"`
	PromptsPath      string          `mapstructure:"prompts_path"`
	BatchConcurrency int             `mapstructure:"batch_concurrency"`
	Log              LogConfig       `mapstructure:"log"`
}

// Default retry budgets per role.
const (
	DefaultPlannerRetries    = 3
	DefaultResearcherRetries = 5
	DefaultExpertRetries     = 5
)

var knownProviders = map[string]bool{
	"anthropic":         true,
	"openai":            true,
	"gemini":            true,
	"deepseek":          true,
	"openrouter":        true,
	"ollama":            true,
	"openai_compatible": true,
}

// providerKeyEnv names the conventional API key variable of each provider,
// used when no key is configured.
var providerKeyEnv = map[string]string{
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// envKeys are bound explicitly so environment overrides reach Unmarshal
// even when the config file omits them.
var envKeys = []string{
	"db_path", "max_steps", "run_timeout", "llm_timeout", "listen_addr",
	"prompts_path", "batch_concurrency", "log.level", "log.format",
	"rate_limit.requests_per_second", "rate_limit.burst",
	"tools.tavily_api_key", "tools.files_root", "tools.http_timeout", "tools.max_iterations",
	"default.provider", "default.model", "default.api_key", "default.base_url",
}

// Load reads the config file at path (optional), applies environment
// overrides, defaults, and validates.
func Load(path string) (*Config, error) {
	return FromViper(viper.New(), path)
}

// FromViper is Load on a caller-prepared viper instance, typically one
// with CLI flags already bound.
func FromViper(v *viper.Viper, path string) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", k, err)
		}
	}
	for _, role := range []string{"planner", "researcher", "expert", "critic", "finalizer"} {
		for _, field := range []string{"provider", "model", "api_key", "base_url", "temperature", "max_tokens", "retry_limit"} {
			if err := v.BindEnv("agents." + role + "." + field); err != nil {
				return nil, fmt.Errorf("bind env: %w", err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Default.Provider == "" {
		c.Default.Provider = "openai"
	}
	if c.Default.Model == "" {
		c.Default.Model = "gpt-4o-mini"
	}
	if c.DBPath == "" {
		c.DBPath = "deliberate.db"
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = 100
	}
	if c.RunTimeout == 0 {
		c.RunTimeout = 15 * time.Minute
	}
	if c.LLMTimeout == 0 {
		c.LLMTimeout = 2 * time.Minute
	}
	if c.Tools.HTTPTimeout == 0 {
		c.Tools.HTTPTimeout = 30 * time.Second
	}
	if c.Tools.MaxIterations == 0 {
		c.Tools.MaxIterations = 10
	}
	if c.Tools.FilesRoot == "" {
		c.Tools.FilesRoot = "."
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":9800"
	}
	if c.BatchConcurrency == 0 {
		c.BatchConcurrency = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Tools.TavilyAPIKey == "" {
		c.Tools.TavilyAPIKey = os.Getenv("TAVILY_API_KEY")
	}

	setRetry(&c.Agents.Planner, DefaultPlannerRetries)
	setRetry(&c.Agents.Researcher, DefaultResearcherRetries)
	setRetry(&c.Agents.Expert, DefaultExpertRetries)

	for _, a := range c.agentList() {
		a.cfg.inherit(c.Default)
	}
}

func setRetry(a *AgentConfig, n int) {
	if a.RetryLimit == nil {
		a.RetryLimit = &n
	}
}

// inherit fills empty fields from def. A provider override drops the
// default's key and base URL, which belong to the default provider.
func (a *AgentConfig) inherit(def AgentConfig) {
	sameProvider := a.Provider == "" || a.Provider == def.Provider
	if a.Provider == "" {
		a.Provider = def.Provider
	}
	if a.Model == "" {
		a.Model = def.Model
	}
	if sameProvider {
		if a.APIKey == "" {
			a.APIKey = def.APIKey
		}
		if a.BaseURL == "" {
			a.BaseURL = def.BaseURL
		}
	}
	if a.APIKey == "" {
		if env, ok := providerKeyEnv[a.Provider]; ok {
			a.APIKey = os.Getenv(env)
		}
	}
	if a.Temperature == nil {
		a.Temperature = def.Temperature
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = def.MaxTokens
	}
}

type namedAgent struct {
	name string
	cfg  *AgentConfig
}

func (c *Config) agentList() []namedAgent {
	return []namedAgent{
		{"planner", &c.Agents.Planner},
		{"researcher", &c.Agents.Researcher},
		{"expert", &c.Agents.Expert},
		{"critic", &c.Agents.Critic},
		{"finalizer", &c.Agents.Finalizer},
	}
}

// Agent returns the resolved settings of one agent.
func (c *Config) Agent(id domain.AgentID) AgentConfig {
	for _, a := range c.agentList() {
		if a.name == string(id) {
			return *a.cfg
		}
	}
	return c.Default
}

// RetryLimits returns the per-role retry budgets.
func (c *Config) RetryLimits() map[domain.Role]int {
	return map[domain.Role]int{
		domain.RolePlanner:    *c.Agents.Planner.RetryLimit,
		domain.RoleResearcher: *c.Agents.Researcher.RetryLimit,
		domain.RoleExpert:     *c.Agents.Expert.RetryLimit,
	}
}

func (c *Config) validate() error {
	var problems []string

	for _, a := range c.agentList() {
		if !knownProviders[a.cfg.Provider] {
			problems = append(problems, fmt.Sprintf("agents.%s.provider %q is not supported", a.name, a.cfg.Provider))
		}
		if a.cfg.Provider == "openai_compatible" && a.cfg.BaseURL == "" {
			problems = append(problems, fmt.Sprintf("agents.%s.base_url is required for openai_compatible", a.name))
		}
		if t := a.cfg.Temperature; t != nil && (*t < 0 || *t > 2) {
			problems = append(problems, fmt.Sprintf("agents.%s.temperature must be within [0, 2]", a.name))
		}
		if a.cfg.MaxTokens < 0 {
			problems = append(problems, fmt.Sprintf("agents.%s.max_tokens must not be negative", a.name))
		}
		if r := a.cfg.RetryLimit; r != nil && *r < 0 {
			problems = append(problems, fmt.Sprintf("agents.%s.retry_limit must not be negative", a.name))
		}
	}
	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.MaxSteps < 0 {
		problems = append(problems, "max_steps must be positive")
	}
	if c.RunTimeout < 0 {
		problems = append(problems, "run_timeout must not be negative")
	}
	if c.BatchConcurrency < 0 {
		problems = append(problems, "batch_concurrency must be positive")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		problems = append(problems, "rate_limit.requests_per_second must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

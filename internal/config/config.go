package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTP   HTTP
	Store  Store
	Redis  Redis
	Agent  Agent
	Worker Worker
	Log    Log
}

type HTTP struct {
	Port        int    `env:"PORT" envDefault:"7777"`
	APIKey      string `env:"API_KEY"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
}

type Store struct {
	// Backend is one of file, redis, sqlite, memory.
	Backend    string `env:"STORE_BACKEND" envDefault:"file"`
	Dir        string `env:"JOBS_DIRECTORY" envDefault:"jobs_directory"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"jobs.db"`
}

type Redis struct {
	Addr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"browserq:"`
}

type Agent struct {
	// Backend is one of http, exec.
	Backend      string        `env:"AGENT_BACKEND" envDefault:"http"`
	URL          string        `env:"AGENT_URL" envDefault:"http://localhost:8000"`
	Command      string        `env:"AGENT_COMMAND"`
	Model        string        `env:"AGENT_MODEL" envDefault:"gemini-2.5-flash"`
	ModelAPIKey  string        `env:"GOOGLE_API_KEY"`
	Headless     bool          `env:"AGENT_HEADLESS" envDefault:"true"`
	RequestSlack time.Duration `env:"AGENT_REQUEST_SLACK" envDefault:"30s"`
}

type Worker struct {
	Concurrency   int           `env:"AGENT_CONCURRENCY" envDefault:"4"`
	QueueSize     int           `env:"QUEUE_SIZE" envDefault:"1024"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

func Parse() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

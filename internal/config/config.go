package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const maxPercentPrecision = 8

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	RpcAddr  string `env:"RPC_ADDR" envDefault:"localhost:7071"`

	OkxBase string `env:"OKX_BASE" envDefault:"https://www.okx.com"`

	// Empty RedisURL selects the in-process cache.
	RedisURL    string `env:"REDIS_URL"`
	CachePrefix string `env:"CACHE_PREFIX" envDefault:"pricecompare:"`

	KafkaEnabled      bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaURL          string `env:"KAFKA_URL" envDefault:"localhost:9092"`
	KafkaRequestTopic string `env:"KAFKA_REQUEST_TOPIC" envDefault:"compare-requests"`
	KafkaResultTopic  string `env:"KAFKA_RESULT_TOPIC" envDefault:"compare-results"`
	KafkaGroupID      string `env:"KAFKA_GROUP_ID" envDefault:"pricecompare"`
	KafkaWorkers      int    `env:"KAFKA_WORKERS" envDefault:"3"`

	LlmBaseURL  string `env:"LLM_BASE_URL" envDefault:"https://router.huggingface.co/v1"`
	LlmAPIToken string `env:"LLM_API_TOKEN"`
	LlmModel    string `env:"LLM_MODEL" envDefault:"zai-org/GLM-4.6:novita"`

	APIKeys    []string      `env:"API_KEYS" envSeparator:","`
	RateLimit  int           `env:"RATE_LIMIT" envDefault:"30"`
	RateWindow time.Duration `env:"RATE_WINDOW" envDefault:"60s"`

	PercentPrecision int32 `env:"PERCENT_PRECISION" envDefault:"4"`

	CurrentPriceTTL time.Duration `env:"CURRENT_PRICE_TTL" envDefault:"10s"`
	HistoryTTL      time.Duration `env:"HISTORY_TTL" envDefault:"1h"`
	SymbolsTTL      time.Duration `env:"SYMBOLS_TTL" envDefault:"24h"`

	ConnectTimeout time.Duration `env:"HTTP_CONNECT_TIMEOUT" envDefault:"10s"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"20s"`
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`

	MaxAttempts      int           `env:"FETCH_MAX_ATTEMPTS" envDefault:"3"`
	RateLimitBackoff time.Duration `env:"FETCH_RATE_LIMIT_BACKOFF" envDefault:"300ms"`
	RetryBackoff     time.Duration `env:"FETCH_RETRY_BACKOFF" envDefault:"200ms"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// New reads an optional .env file and then the process environment.
// Values already present in the environment win over the file.
func New(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("Load env file error: %v", err)
	}

	conf := Config{}
	if err := env.Parse(&conf); err != nil {
		log.Errorf("Parse config error: %v\n", err)
	}

	if conf.PercentPrecision < 0 || conf.PercentPrecision > maxPercentPrecision {
		clamped := max(0, min(conf.PercentPrecision, maxPercentPrecision))
		log.Warnf("PERCENT_PRECISION %d out of range 0..%d, using %d", conf.PercentPrecision, maxPercentPrecision, clamped)
		conf.PercentPrecision = clamped
	}

	return conf
}

// SetupLogger applies the configured level and format to the standard logrus logger.
func (c Config) SetupLogger() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("unknown log level %q, using info", c.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

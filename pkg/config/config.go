package config

import "time"

// Config is the root configuration for the cost analytics core. Every
// tunable threshold in the pipeline lives here under a named field so there
// is a single source of truth for the numbers the analysis engines share.
type Config struct {
	Server         ServerConfig         `yaml:"server" env:"SERVER"`
	Database       DatabaseConfig       `yaml:"database" env:"DB"`
	Collection     CollectionConfig     `yaml:"collection" env:"COLLECTION"`
	Scheduler      SchedulerConfig      `yaml:"scheduler" env:"SCHEDULER"`
	Quality        QualityConfig        `yaml:"quality" env:"QUALITY"`
	Anomaly        AnomalyConfig        `yaml:"anomaly" env:"ANOMALY"`
	Trend          TrendConfig          `yaml:"trend" env:"TREND"`
	Forecast       ForecastConfig       `yaml:"forecast" env:"FORECAST"`
	Recommendation RecommendationConfig `yaml:"recommendation" env:"RECOMMENDATION"`
	Insights       InsightsConfig       `yaml:"insights" env:"INSIGHTS"`
	LogLevel       string               `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat      string               `yaml:"log_format" env:"LOG_FORMAT"`
}

// ServerConfig configures the HTTP API surface.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig configures the postgres connection.
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	Username        string        `yaml:"username" env:"USERNAME"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Database        string        `yaml:"database" env:"DATABASE"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// CollectionConfig bounds the orchestrator's concurrency and retry policy.
type CollectionConfig struct {
	// MaxConcurrentTasks bounds in-flight tasks across all providers.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks" env:"MAX_CONCURRENT_TASKS"`
	// MaxConcurrentPerProvider bounds in-flight tasks per provider.
	MaxConcurrentPerProvider int `yaml:"max_concurrent_per_provider" env:"MAX_CONCURRENT_PER_PROVIDER"`
	// ProviderRateLimit is the sustained adapter-call rate per provider
	// (calls per second); ProviderRateBurst the burst allowance.
	ProviderRateLimit float64 `yaml:"provider_rate_limit" env:"PROVIDER_RATE_LIMIT"`
	ProviderRateBurst int     `yaml:"provider_rate_burst" env:"PROVIDER_RATE_BURST"`

	MaxRetries     int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"RETRY_BASE_DELAY"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" env:"RETRY_MAX_DELAY"`
	// RetryJitter is the symmetric jitter fraction applied to each backoff
	// delay (0.2 means ±20%).
	RetryJitter float64 `yaml:"retry_jitter" env:"RETRY_JITTER"`
}

// SchedulerConfig configures queue consumption and retry routing.
type SchedulerConfig struct {
	MaxRetries       int           `yaml:"max_retries" env:"MAX_RETRIES"`
	ReceiveBatchSize int           `yaml:"receive_batch_size" env:"RECEIVE_BATCH_SIZE"`
	ReceiveWait      time.Duration `yaml:"receive_wait" env:"RECEIVE_WAIT"`
}

// QualityConfig holds the validation thresholds of the data quality engine.
type QualityConfig struct {
	// VarianceTolerance is the accepted relative gap between the record
	// total and the service/account sums.
	VarianceTolerance float64 `yaml:"variance_tolerance" env:"VARIANCE_TOLERANCE"`
	// ProviderTotalTolerance is the accepted relative gap between the
	// normalized total and the provider's stated total.
	ProviderTotalTolerance float64 `yaml:"provider_total_tolerance" env:"PROVIDER_TOTAL_TOLERANCE"`
	// ZeroCostServiceRatio is the accepted fraction of zero-cost services.
	ZeroCostServiceRatio float64 `yaml:"zero_cost_service_ratio" env:"ZERO_COST_SERVICE_RATIO"`
	// UnknownCategoryRatio is the accepted fraction of services mapped to
	// the Other category.
	UnknownCategoryRatio float64 `yaml:"unknown_category_ratio" env:"UNKNOWN_CATEGORY_RATIO"`
	// MaxStaleness is how old collected data may be before timeliness
	// issues are raised.
	MaxStaleness time.Duration `yaml:"max_staleness" env:"MAX_STALENESS"`
	// DateWindowDays bounds how far a record date may sit from now.
	DateWindowDays int `yaml:"date_window_days" env:"DATE_WINDOW_DAYS"`
	// CostSanityBound is the single-record total above which validity
	// issues are raised.
	CostSanityBound float64 `yaml:"cost_sanity_bound" env:"COST_SANITY_BOUND"`
	// HighConfidenceScore is the overall-score floor for a HIGH confidence
	// level; below LowConfidenceScore a record is capped at MEDIUM even
	// without high-severity issues. LOW is reserved for critical issues.
	HighConfidenceScore float64 `yaml:"high_confidence_score" env:"HIGH_CONFIDENCE_SCORE"`
	LowConfidenceScore  float64 `yaml:"low_confidence_score" env:"LOW_CONFIDENCE_SCORE"`
}

// AnomalyConfig holds the detection thresholds of the anomaly engine.
type AnomalyConfig struct {
	// SpikeSigma is the number of standard deviations above the historical
	// mean at which a cost spike is reported.
	SpikeSigma float64 `yaml:"spike_sigma" env:"SPIKE_SIGMA"`
	// MinHistoricalPoints is the minimum historical sample size; below it
	// detection returns no anomalies.
	MinHistoricalPoints int `yaml:"min_historical_points" env:"MIN_HISTORICAL_POINTS"`
	// NewServiceCostFloor is the minimum daily cost for a newly appeared
	// service to be reported.
	NewServiceCostFloor float64 `yaml:"new_service_cost_floor" env:"NEW_SERVICE_COST_FLOOR"`
	// DisappearanceCostFloor is the minimum historical daily cost for a
	// vanished service to be reported.
	DisappearanceCostFloor float64 `yaml:"disappearance_cost_floor" env:"DISAPPEARANCE_COST_FLOOR"`
	// BudgetWarnRatio / BudgetHighRatio are the cumulative budget overrun
	// fractions for medium and high severity budget deviations.
	BudgetWarnRatio float64 `yaml:"budget_warn_ratio" env:"BUDGET_WARN_RATIO"`
	BudgetHighRatio float64 `yaml:"budget_high_ratio" env:"BUDGET_HIGH_RATIO"`
}

// TrendConfig holds the classification bands of the trend analyzer.
type TrendConfig struct {
	// IncreaseBand / DecreaseBand are the recent/older mean ratios beyond
	// which a trend counts as increasing or decreasing.
	IncreaseBand float64 `yaml:"increase_band" env:"INCREASE_BAND"`
	DecreaseBand float64 `yaml:"decrease_band" env:"DECREASE_BAND"`
	// MinDataPoints is the minimum history for any trend computation.
	MinDataPoints int `yaml:"min_data_points" env:"MIN_DATA_POINTS"`
	// SeasonalMinDays is the minimum history for seasonal classification.
	SeasonalMinDays int `yaml:"seasonal_min_days" env:"SEASONAL_MIN_DAYS"`
}

// ForecastConfig holds the projection thresholds of the forecasting engine.
type ForecastConfig struct {
	// TrendingUpDeviation is the relative deviation from the prior-period
	// baseline at which a projection is flagged as trending up.
	TrendingUpDeviation float64 `yaml:"trending_up_deviation" env:"TRENDING_UP_DEVIATION"`
	// MinHistoryDays is the history below which accuracy is very_low.
	MinHistoryDays int `yaml:"min_history_days" env:"MIN_HISTORY_DAYS"`
	// AmpleHistoryDays is the history at which accuracy may reach high.
	AmpleHistoryDays int `yaml:"ample_history_days" env:"AMPLE_HISTORY_DAYS"`
	// StableVolatility is the volatility percentage under which history
	// counts as stable for accuracy assessment.
	StableVolatility float64 `yaml:"stable_volatility" env:"STABLE_VOLATILITY"`
	// HorizonDays is the projection window used when a caller does not ask
	// for one explicitly.
	HorizonDays int `yaml:"horizon_days" env:"HORIZON_DAYS"`
}

// RecommendationConfig bounds recommendation output.
type RecommendationConfig struct {
	// MaxRecommendations caps the ranked output list.
	MaxRecommendations int `yaml:"max_recommendations" env:"MAX_RECOMMENDATIONS"`
	// MinConfidence drops generator output below this confidence.
	MinConfidence float64 `yaml:"min_confidence" env:"MIN_CONFIDENCE"`
}

// InsightsConfig configures aggregation, ranking and workflow caching.
type InsightsConfig struct {
	// DuplicateSimilarity is the combined similarity above which two
	// insights of the same category collapse into one.
	DuplicateSimilarity float64 `yaml:"duplicate_similarity" env:"DUPLICATE_SIMILARITY"`
	// CorrelationThreshold is the combined correlation score above which
	// two insights are cross-linked.
	CorrelationThreshold float64 `yaml:"correlation_threshold" env:"CORRELATION_THRESHOLD"`
	// CacheTTL is how long workflow results are served from cache.
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// CacheSize bounds the number of cached workflow results.
	CacheSize int `yaml:"cache_size" env:"CACHE_SIZE"`
}

// Default returns the configuration defaults for every subsystem.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Username:        "postgres",
			Database:        "costlens",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Collection: CollectionConfig{
			MaxConcurrentTasks:       10,
			MaxConcurrentPerProvider: 3,
			ProviderRateLimit:        5,
			ProviderRateBurst:        10,
			MaxRetries:               3,
			RetryBaseDelay:           2 * time.Second,
			RetryMaxDelay:            300 * time.Second,
			RetryJitter:              0.2,
		},
		Scheduler: SchedulerConfig{
			MaxRetries:       3,
			ReceiveBatchSize: 10,
			ReceiveWait:      5 * time.Second,
		},
		Quality: QualityConfig{
			VarianceTolerance:      0.05,
			ProviderTotalTolerance: 0.01,
			ZeroCostServiceRatio:   0.20,
			UnknownCategoryRatio:   0.30,
			MaxStaleness:           48 * time.Hour,
			DateWindowDays:         90,
			CostSanityBound:        1_000_000,
			HighConfidenceScore:    0.9,
			LowConfidenceScore:     0.7,
		},
		Anomaly: AnomalyConfig{
			SpikeSigma:             2.0,
			MinHistoricalPoints:    5,
			NewServiceCostFloor:    10,
			DisappearanceCostFloor: 50,
			BudgetWarnRatio:        0.10,
			BudgetHighRatio:        0.20,
		},
		Trend: TrendConfig{
			IncreaseBand:    1.1,
			DecreaseBand:    0.9,
			MinDataPoints:   2,
			SeasonalMinDays: 14,
		},
		Forecast: ForecastConfig{
			TrendingUpDeviation: 0.04,
			MinHistoryDays:      7,
			AmpleHistoryDays:    30,
			StableVolatility:    20,
			HorizonDays:         30,
		},
		Recommendation: RecommendationConfig{
			MaxRecommendations: 15,
			MinConfidence:      0.3,
		},
		Insights: InsightsConfig{
			DuplicateSimilarity:  0.8,
			CorrelationThreshold: 0.7,
			CacheTTL:             6 * time.Hour,
			CacheSize:            256,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load reads configuration from an optional file path and COSTLENS_*
// environment variables on top of the defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	loader := NewLoader("COSTLENS")
	if err := loader.Load(configPath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

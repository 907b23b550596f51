package config

import "time"

// Application-wide constants organized by domain

// Database and Performance Constants
const (
	// Timeouts
	DefaultQueryTimeout = 30 * time.Second
	StatsQueryTimeout   = 10 * time.Second
	BatchQueryTimeout   = 30 * time.Second
	NetworkDialTimeout  = 5 * time.Second

	// Pool settings
	DefaultPoolSize = 20

	// Cache settings
	PriceCacheExpiration = 15 * time.Minute
	PriceCacheSize       = 10000

	// Batch processing
	DefaultDeleteBatchSize = 1000
	MaxHistoryLimit        = 1000
	DefaultHistoryLimit    = 100
	DBMaxRetries           = 3
)

// Monitoring Constants
const (
	DefaultCheckInterval   = 15 * time.Minute
	DefaultScrapeTimeout   = 30 * time.Second
	DefaultMaxConcurrent   = 3
	DefaultSitePerCap      = 1
	CycleMaxFailures       = 5
	ScrapeMaxAttempts      = 3

	// Tracked product bounds
	MinCheckIntervalMinutes = 1
	MaxCheckIntervalMinutes = 10080 // one week

	// Shutdown
	DrainGracePeriod = 60 * time.Second
)

// Site Health Constants
const (
	MaxConsecutiveFailures = 5

	// Retry backoff
	RetryBaseDelay  = time.Second
	RetryMaxDelay   = 60 * time.Second
	RetryJitterFrac = 0.25

	// Cooldown durations by severity
	CooldownLow      = time.Minute
	CooldownMedium   = 5 * time.Minute
	CooldownHigh     = 30 * time.Minute
	CooldownCritical = 2 * time.Hour
)

// Price Change Constants
const (
	DefaultSignificantChangePct = 2.0
	DropMediumPct               = 10.0
	DropHighPct                 = 20.0
	IncreaseMediumPct           = 25.0
	IncreaseHighPct             = 50.0
)

// Price bounds
const (
	MinPriceStr = "0.01"
	MaxPriceStr = "99999999.99"
)

// Alerting Constants
const (
	DefaultAlertMinInterval = time.Hour
	WebhookTimeout          = 10 * time.Second
)

// Retention Constants
const (
	DefaultPriceHistoryDays     = 90
	DefaultMinRecordsPerProduct = 10
	DefaultStaleProductDays     = 180
	DefaultSearchResultDays     = 30
	DefaultRetentionInterval    = 24 * time.Hour
	RetentionDeleteBatch        = 1000
)

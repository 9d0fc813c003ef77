package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"picturecoupon/internal/pictures"
)

const (
	MetaStorePostgres = "postgres"
	MetaStoreSQLite   = "sqlite"
)

type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// HTTPConfig.TrustedProxies lists the proxies allowed to set
// X-Forwarded-For. Empty trusts none.
type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

type StorageConfig struct {
	Endpoint        string
	PublicURL       string
	AccessKey       string
	SecretKey       string
	BucketOriginals string
	BucketVariants  string
	UseSSL          bool
	Region          string
}

type SecurityConfig struct {
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	SignatureSecret  string
	MaxSessions      int
}

type PicturesConfig struct {
	MaxProfilePictures int
	MetaStore          string
	SQLitePath         string
	CacheTTL           time.Duration
	MaxUploadBytes     int64
	ThumbnailSizes     []int
	OrphanGrace        time.Duration
}

type QueueConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	TLS              TLSConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Pictures         PicturesConfig
	Queue            QueueConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("PICTURECOUPON")
	v.AutomaticEnv()

	return load(v)
}

func load(v *viper.Viper) (*AppConfig, error) {
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, decoderOptions); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func decoderOptions(dc *mapstructure.DecoderConfig) {
	dc.TagName = "mapstructure"
	dc.WeaklyTypedInput = true
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func (c *AppConfig) normalize() error {
	c.Pictures.MaxProfilePictures = pictures.ParseMaxProfilePictures(
		fmt.Sprint(c.Pictures.MaxProfilePictures),
		pictures.DefaultMaxProfilePictures,
	)

	switch c.Pictures.MetaStore {
	case MetaStorePostgres, MetaStoreSQLite:
	case "":
		c.Pictures.MetaStore = MetaStorePostgres
	default:
		return fmt.Errorf("unknown pictures.metastore %q", c.Pictures.MetaStore)
	}

	sizes := c.Pictures.ThumbnailSizes[:0]
	for _, size := range c.Pictures.ThumbnailSizes {
		if size > 0 {
			sizes = append(sizes, size)
		}
	}
	c.Pictures.ThumbnailSizes = sizes

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dialtimeout", "5s")

	v.SetDefault("storage.bucketoriginals", "picturecoupon-originals")
	v.SetDefault("storage.bucketvariants", "picturecoupon-variants")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "720h") // 30 days
	v.SetDefault("security.maxsessions", 10)

	v.SetDefault("pictures.maxprofilepictures", pictures.DefaultMaxProfilePictures)
	v.SetDefault("pictures.metastore", MetaStorePostgres)
	v.SetDefault("pictures.sqlitepath", "picturecoupon.db")
	v.SetDefault("pictures.cachettl", "10m")
	v.SetDefault("pictures.maxuploadbytes", 5<<20)
	v.SetDefault("pictures.thumbnailsizes", []int{32, 64, 96, 128})
	v.SetDefault("pictures.orphangrace", "24h")

	v.SetDefault("queue.stream", "pictures:ingest")
	v.SetDefault("queue.group", "picture-workers")
	v.SetDefault("queue.consumer", "worker-1")
	v.SetDefault("queue.claiminterval", "10s")
}

package config

import "github.com/spf13/viper"

// LoadWorker reads the worker configuration. It shares the API layout so the
// worker can reach the same Postgres, Redis and object storage.
func LoadWorker() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("worker")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../../config")
	v.SetEnvPrefix("PICTURECOUPON_WORKER")
	v.AutomaticEnv()

	v.SetDefault("logging.level", "info")

	return load(v)
}

package config

import "github.com/spf13/viper"

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	Postgres struct {
		DSN           string
		LockTimeoutMS int `mapstructure:"lock_timeout_ms"`
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
		Addr    string
	} `mapstructure:"metrics"`
}

// Load reads the YAML config at path. Any key can be overridden through the
// environment with an APP_ prefix (e.g. APP_POSTGRES_DSN).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

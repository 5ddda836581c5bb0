package config

import "time"

// ClientConfig - конфигурация CLI api-client.
type ClientConfig struct {
	Env         string            `yaml:"env" env:"ENV" env-default:"local"`
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Burst       BurstConfig       `yaml:"burst"`
}

// APIConfig - параметры apiclient.Client.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url" env:"API_BASE_URL" env-required:"true"`
	UserAgent      string        `yaml:"user_agent" env:"API_USER_AGENT" env-default:"nihongo-api-client"`
	Timeout        time.Duration `yaml:"timeout" env:"API_TIMEOUT" env-default:"15s"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"API_REFRESH_TIMEOUT" env-default:"10s"`
	MaxQueue       int           `yaml:"max_queue" env:"API_MAX_QUEUE" env-default:"256"`
	LoginPath      string        `yaml:"login_path" env:"API_LOGIN_PATH" env-default:"/login"`
}

// CredentialsConfig - учётные данные для входа.
type CredentialsConfig struct {
	Username string `yaml:"username" env:"NIHONGO_USERNAME"`
	Password string `yaml:"password" env:"NIHONGO_PASSWORD"`
}

// BurstConfig - пачка параллельных запросов после входа.
type BurstConfig struct {
	Paths  []string `yaml:"paths" env:"BURST_PATHS" env-default:"/api/vocabularies,/api/diary/my"`
	Rounds int      `yaml:"rounds" env:"BURST_ROUNDS" env-default:"1"`
}

// MustLoadClient - обёртка над LoadClient с panic при ошибке.
func MustLoadClient(path string) *ClientConfig {
	cfg, err := LoadClient(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// LoadClient загружает конфигурацию клиента с тем же приоритетом источников, что и Load.
func LoadClient(path string) (*ClientConfig, error) {
	return load[ClientConfig](path)
}

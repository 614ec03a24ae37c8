package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Webhook struct {
		VerifyToken   string `mapstructure:"verifyToken"`   // Token echoed back during the GET handshake
		AppSecret     string `mapstructure:"appSecret"`     // HMAC key for X-Hub-Signature-256 verification
		MaxBatchSize  int    `mapstructure:"maxBatchSize"`  // Cap on events applied per request
		CountryPrefix string `mapstructure:"countryPrefix"` // Country code assumed for local phone numbers
	} `mapstructure:"webhook"`
	WhatsApp struct {
		BaseURL          string        `mapstructure:"baseURL"`
		AccessToken      string        `mapstructure:"accessToken"`
		PhoneNumberID    string        `mapstructure:"phoneNumberID"`
		TemplateName     string        `mapstructure:"templateName"`
		TemplateLanguage string        `mapstructure:"templateLanguage"`
		SendEnabled      bool          `mapstructure:"sendEnabled"`
		RequestTimeout   time.Duration `mapstructure:"requestTimeout"`
	} `mapstructure:"whatsapp"`
	Trello struct {
		BaseURL        string        `mapstructure:"baseURL"`
		Key            string        `mapstructure:"key"`
		Token          string        `mapstructure:"token"`
		ListID         string        `mapstructure:"listID"`
		RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	} `mapstructure:"trello"`
	Drive struct {
		BaseURL        string        `mapstructure:"baseURL"`
		AccessToken    string        `mapstructure:"accessToken"`
		ParentFolderID string        `mapstructure:"parentFolderID"`
		ShareWith      string        `mapstructure:"shareWith"` // Optional email granted writer access on new folders
		RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	} `mapstructure:"drive"`
	Reminders struct {
		Timezone string `mapstructure:"timezone"` // Business timezone used to resolve today/tomorrow
	} `mapstructure:"reminders"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	WorkerPools struct {
		Orchestration OrchestrationWorkerPoolConfig `mapstructure:"orchestration"`
	} `mapstructure:"workerPools"`
}

// OrchestrationWorkerPoolConfig holds configuration for the downstream orchestration worker pool
type OrchestrationWorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Task queue buffer size
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	// Create new viper instance
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("webhook.maxBatchSize", 50)
	v.SetDefault("webhook.countryPrefix", "55")

	v.SetDefault("whatsapp.baseURL", "https://graph.facebook.com/v19.0")
	v.SetDefault("whatsapp.templateLanguage", "pt_BR")
	v.SetDefault("whatsapp.sendEnabled", false)
	v.SetDefault("whatsapp.requestTimeout", 15*time.Second)

	v.SetDefault("trello.baseURL", "https://api.trello.com/1")
	v.SetDefault("trello.requestTimeout", 15*time.Second)

	v.SetDefault("drive.baseURL", "https://www.googleapis.com/drive/v3")
	v.SetDefault("drive.requestTimeout", 20*time.Second)

	v.SetDefault("reminders.timezone", "America/Sao_Paulo")

	// WorkerPools Defaults
	v.SetDefault("workerPools.orchestration.poolSize", 8)
	v.SetDefault("workerPools.orchestration.queueSize", 1000)
	v.SetDefault("workerPools.orchestration.expiryTime", time.Minute)

	// Config file settings
	v.SetConfigName("default") // name of config file (without extension)
	v.SetConfigType("yaml")    // REQUIRED if the config file does not have the extension in the name

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.onboarding-events-engine")
	v.AddConfigPath("/etc/onboarding-events-engine")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if token := os.Getenv("WHATSAPP_VERIFY_TOKEN"); token != "" {
		v.Set("webhook.verifyToken", token)
	}
	if secret := os.Getenv("WHATSAPP_APP_SECRET"); secret != "" {
		v.Set("webhook.appSecret", secret)
	}
	if token := os.Getenv("WHATSAPP_ACCESS_TOKEN"); token != "" {
		v.Set("whatsapp.accessToken", token)
	}
	if key := os.Getenv("TRELLO_KEY"); key != "" {
		v.Set("trello.key", key)
	}
	if token := os.Getenv("TRELLO_TOKEN"); token != "" {
		v.Set("trello.token", token)
	}
	if token := os.Getenv("DRIVE_ACCESS_TOKEN"); token != "" {
		v.Set("drive.accessToken", token)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}

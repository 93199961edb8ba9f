package config

import (
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "SOLUS"

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterValidation("abspath", ValidateAbsPath)
	validate.RegisterValidation("identifier", ValidateIdentifier)
	validate.RegisterValidation("keypattern", ValidateKeyPattern)

	if err := validate.Struct(c); err != nil {
		return err
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 5004)
	v.SetDefault("server.limits.max_payload_size", 64<<10)
	v.SetDefault("server.limits.max_file_size", 100<<20)
	v.SetDefault("server.limits.max_multipart_mem", 32<<20)
	v.SetDefault("server.limits.max_connections", 0)

	v.SetDefault("media.path", "/var/lib/solus/uploads")
	v.SetDefault("media.allowed_extensions", []string{"mp3", "wav", "m4a", "flac", "png"})

	v.SetDefault("mirror.strategy", "noop")
	v.SetDefault("mirror.content_type", "derived")
	v.SetDefault("mirror.key_pattern", "{filename}")
	v.SetDefault("mirror.timeout", 60*time.Second)
	v.SetDefault("mirror.queue.workers", 2)
	v.SetDefault("mirror.queue.size", 64)
	v.SetDefault("mirror.queue.max_retries", 0)
	v.SetDefault("mirror.queue.backoff", time.Second)

	v.SetDefault("ledger.strategy", "none")

	v.SetDefault("catalog.page_size", 100)
	v.SetDefault("catalog.list_timeout", 10*time.Second)

	v.SetDefault("completion.base_url", "https://api.openai.com/v1")
	v.SetDefault("completion.model", "gpt-3.5-turbo-instruct")
	v.SetDefault("completion.max_tokens", 150)
	v.SetDefault("completion.timeout", 60*time.Second)
	v.SetDefault("completion.rate_limit_qps", 0)
}

// bindEnvs registers every mapstructure key of t with viper so that
// environment overrides apply even when the file and defaults never mention
// the key.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		ft := field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Time{}) {
			bindEnvs(v, ft, key)
			continue
		}

		v.BindEnv(key)
	}
}

func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, reflect.TypeOf(Config{}), "")
	v.BindEnv("completion.api_key", envPrefix+"_COMPLETION_API_KEY", "OPENAI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		log.Println("read in fail")
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Println("unmarshal fail")
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		log.Println("validate fail")
		return nil, err
	}

	return &cfg, nil
}

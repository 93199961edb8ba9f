package config

import "time"

type Config struct {
	Debug      bool       `mapstructure:"debug"`
	Server     Server     `mapstructure:"server"`
	Auth       Auth       `mapstructure:"auth"`
	Media      Media      `mapstructure:"media"`
	Mirror     Mirror     `mapstructure:"mirror"`
	Ledger     Ledger     `mapstructure:"ledger"`
	Catalog    Catalog    `mapstructure:"catalog"`
	Completion Completion `mapstructure:"completion"`
}

type Server struct {
	Address string       `mapstructure:"address" validate:"required,hostname|ip"`
	Port    int          `mapstructure:"port" validate:"min=0,max=65535"`
	Limits  ServerLimits `mapstructure:"limits"`
}

type ServerLimits struct {
	MaxPayloadSize  uint `mapstructure:"max_payload_size" validate:"required"`
	MaxFileSize     uint `mapstructure:"max_file_size" validate:"required"`
	MaxMultipartMem uint `mapstructure:"max_multipart_mem" validate:"required"`
	MaxConnections  int  `mapstructure:"max_connections" validate:"min=0"`
}

// Auth configures the external identity subsystem. When disabled, every
// request is accepted without credentials.
type Auth struct {
	Enabled       bool   `mapstructure:"enabled"`
	MeUrl         string `mapstructure:"me_url" validate:"required_if=Enabled true"`
	TokenEndpoint string `mapstructure:"token_endpoint" validate:"required_if=Enabled true"`
}

type Media struct {
	Path              string   `mapstructure:"path" validate:"required,abspath"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" validate:"dive,required,alphanum"`
}

type Mirror struct {
	Strategy string            `mapstructure:"strategy" validate:"required,oneof=noop s3"`
	S3       *S3MirrorStrategy `mapstructure:"s3" validate:"required_if=Strategy s3"`
	// ContentType selects how the uploaded object's content type is chosen:
	// "derived" maps the extension, "fixed" always sends audio/mpeg.
	ContentType string        `mapstructure:"content_type" validate:"required,oneof=derived fixed"`
	KeyPattern  string        `mapstructure:"key_pattern" validate:"keypattern"`
	Queue       MirrorQueue   `mapstructure:"queue"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"min=0"`
}

type S3MirrorStrategy struct {
	Endpoint           string       `mapstructure:"endpoint"`
	Region             string       `mapstructure:"region"`
	DisableSSL         bool         `mapstructure:"disable_ssl"`
	ForcePathStyle     bool         `mapstructure:"force_path_style"`
	AccessKeyId        string       `mapstructure:"access_key_id" validate:"required_without=CredentialsFile"`
	SecretKeyId        string       `mapstructure:"secret_key_id" validate:"required_with=AccessKeyId"`
	CredentialsFile    string       `mapstructure:"credentials_file" validate:"omitempty,file"`
	CredentialsProfile string       `mapstructure:"credentials_profile"`
	Beats              BucketTarget `mapstructure:"beats"`
	Uploads            BucketTarget `mapstructure:"uploads"`
}

// BucketTarget binds one logical bucket to its remote identifier.
type BucketTarget struct {
	Bucket    string `mapstructure:"bucket" validate:"required"`
	PublicUrl string `mapstructure:"public_url" validate:"omitempty,url"`
}

type MirrorQueue struct {
	Workers    int           `mapstructure:"workers" validate:"min=0"`
	Size       int           `mapstructure:"size" validate:"min=0"`
	MaxRetries uint64        `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff" validate:"min=0"`
}

type Ledger struct {
	Strategy string             `mapstructure:"strategy" validate:"required,oneof=none sql"`
	SQL      *SQLLedgerStrategy `mapstructure:"sql" validate:"required_if=Strategy sql"`
}

type SQLLedgerStrategy struct {
	Driver      string  `mapstructure:"driver" validate:"required,oneof=postgres mysql"`
	DSN         string  `mapstructure:"dsn" validate:"required"`
	TablePrefix *string `mapstructure:"table_prefix" validate:"omitempty,identifier"`
}

type Catalog struct {
	PageSize    int           `mapstructure:"page_size" validate:"min=1,max=1000"`
	ListTimeout time.Duration `mapstructure:"list_timeout" validate:"min=0"`
}

type Completion struct {
	ApiKey       string        `mapstructure:"api_key"`
	BaseUrl      string        `mapstructure:"base_url" validate:"required,url"`
	Model        string        `mapstructure:"model" validate:"required"`
	MaxTokens    int           `mapstructure:"max_tokens" validate:"min=1"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"min=0"`
	RateLimitQPS int           `mapstructure:"rate_limit_qps" validate:"min=0"`
}

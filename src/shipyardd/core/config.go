package core

import (
	"github.com/bitswalk/shipyard/src/common/cli"
	"github.com/bitswalk/shipyard/src/shipyardd/api"
	"github.com/bitswalk/shipyard/src/shipyardd/api/versions"
	"github.com/bitswalk/shipyard/src/shipyardd/auth"
	"github.com/bitswalk/shipyard/src/shipyardd/build"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/bitswalk/shipyard/src/shipyardd/events"
	"github.com/bitswalk/shipyard/src/shipyardd/registry"
	"github.com/bitswalk/shipyard/src/shipyardd/storage"
	"github.com/spf13/viper"
)

// The helpers below are the only place configuration is read. Everything
// downstream receives explicit structs.

func databaseConfig() db.Config {
	return db.Config{
		PersistPath: viper.GetString("database.path"),
		LoadOnStart: true,
	}
}

func storageConfig() storage.Config {
	storageType := viper.GetString("storage.type")

	// If S3 endpoint is specified, use S3 regardless of storage.type
	s3Endpoint := viper.GetString("storage.s3.endpoint")
	if s3Endpoint != "" {
		storageType = "s3"
	}

	return storage.Config{
		Type: storageType,
		Local: storage.LocalConfig{
			BasePath: viper.GetString("storage.local.path"),
		},
		S3: storage.S3Config{
			Endpoint:        s3Endpoint,
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
			UsePathStyle:    viper.GetBool("storage.s3.path_style"),
		},
	}
}

func buildConfig() build.Config {
	return build.Config{
		Workers:          viper.GetInt("build.workers"),
		WorkspaceBase:    viper.GetString("build.workspace"),
		Engine:           viper.GetString("build.engine"),
		Timeout:          cli.GetDuration("build.timeout"),
		TemplateDir:      cli.GetExpandedString("build.template_dir"),
		PrivilegedPolicy: build.ParsePrivilegedPolicy(viper.GetString("build.privileged_policy")),
		LogBufferLines:   viper.GetInt("build.log_buffer_lines"),
		Extract: build.ExtractLimits{
			MaxBytes:   viper.GetInt64("build.max_extract_bytes"),
			MaxEntries: viper.GetInt("build.max_extract_entries"),
		},
	}
}

func registryConfig() registry.Config {
	return registry.Config{
		Engine:  viper.GetString("build.engine"),
		Timeout: cli.GetDuration("registry.timeout"),
		Scanner: registry.Scanner(viper.GetString("registry.scanner")),
	}
}

func deployDefaults() versions.DeployDefaults {
	return versions.DeployDefaults{
		Network: viper.GetString("deploy.network"),
		Domain:  viper.GetString("deploy.domain"),
	}
}

func redisConfig() events.RedisConfig {
	return events.RedisConfig{
		Addr:     viper.GetString("events.redis.addr"),
		Password: viper.GetString("events.redis.password"),
		DB:       viper.GetInt("events.redis.db"),
		Channel:  viper.GetString("events.redis.channel"),
	}
}

func authConfig() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.Enabled = viper.GetBool("auth.enabled")
	cfg.Secret = viper.GetString("auth.jwt_secret")
	if issuer := viper.GetString("auth.issuer"); issuer != "" {
		cfg.Issuer = issuer
	}
	return cfg
}

// rateLimitConfig returns nil when rate limiting is turned off
func rateLimitConfig() *api.RateLimitConfig {
	if !viper.GetBool("ratelimit.enabled") {
		return nil
	}
	cfg := api.DefaultRateLimitConfig()
	cfg.SubmitsPerMin = viper.GetInt("ratelimit.submits_per_min")
	cfg.WritesPerMin = viper.GetInt("ratelimit.writes_per_min")
	return &cfg
}

// Package core provides the core command and server functionality for shipyardd.
package core

import (
	"fmt"
	"os"

	"github.com/bitswalk/shipyard/src/common/cli"
	"github.com/bitswalk/shipyard/src/common/logs"
	"github.com/bitswalk/shipyard/src/common/version"
	"github.com/bitswalk/shipyard/src/shipyardd/build"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// VersionInfo holds version information - set at build time via ldflags
	VersionInfo = version.New()

	// Global logger instance
	log = logs.NewDefault()

	// Configuration file path
	cfgFile string
)

// Linker variables - these are set via ldflags at build time
// They must be initialized as empty strings or literals for ldflags to work
var (
	Version        = "dev"
	ReleaseName    = "Dockside"
	ReleaseVersion = "0.0.0"
	BuildDate      = "unknown"
	GitCommit      = "unknown"
)

func linkerVars() version.Linker {
	return version.Linker{
		Version:        Version,
		ReleaseName:    ReleaseName,
		ReleaseVersion: ReleaseVersion,
		BuildDate:      BuildDate,
		GitCommit:      GitCommit,
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shipyardd",
	Short: "Shipyard build and deploy server",
	Long: `shipyardd turns hackathon project submissions into container images.

Uploaded zip archives are versioned per project, built in the background by a
container engine and can then be promoted, scanned and deployed behind Traefik.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), VersionInfo.Full())
	},
}

// Execute runs the root command
func Execute() {
	VersionInfo.For("shipyardd", linkerVars())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Configuration file flag
	cli.RegisterConfigFlag(rootCmd, &cfgFile, "/etc/shipyardd/shipyardd.yaml")

	// Logging flags (using common helper)
	cli.RegisterLogFlags(rootCmd)

	// Server flags
	rootCmd.PersistentFlags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.PersistentFlags().StringP("bind", "b", "0.0.0.0", "Address to bind to")
	rootCmd.PersistentFlags().Int64("max-upload", 200<<20, "Maximum accepted archive size in bytes")

	// Database flags
	rootCmd.PersistentFlags().String("db-path", "~/.shipyardd/shipyardd.db", "Path to persist database on shutdown")

	// Storage flags
	rootCmd.PersistentFlags().String("storage-type", "local", "Storage backend type: 'local' or 's3'")
	rootCmd.PersistentFlags().String("storage-path", "~/.shipyardd/artifacts", "Local storage path (for local backend)")

	// S3 Storage flags
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3-compatible storage endpoint URL")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "shipyard-artifacts", "S3 bucket for archives and build logs")
	rootCmd.PersistentFlags().String("s3-access-key", "", "S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-path-style", true, "Use path-style addressing for S3")

	// Build flags
	rootCmd.PersistentFlags().String("build-workspace", "~/.shipyardd/workspaces", "Base directory for build workspaces")
	rootCmd.PersistentFlags().String("engine", "docker", "Container engine binary: docker or podman")
	rootCmd.PersistentFlags().String("build-timeout", "10m", "Per-build time limit")
	rootCmd.PersistentFlags().String("template-dir", "", "Directory overriding the built-in Dockerfile templates")
	rootCmd.PersistentFlags().String("privileged-policy", "block", "Handling of privileged compose services: block or warn")
	rootCmd.PersistentFlags().Int("build-workers", 2, "Number of concurrent build workers")

	// Registry and deploy flags
	rootCmd.PersistentFlags().String("registry-timeout", "120s", "Per-command limit for tag, push, pull and scan")
	rootCmd.PersistentFlags().String("scanner", "auto", "Image scanner: auto, trivy or engine")
	rootCmd.PersistentFlags().String("deploy-network", "", "Container network deployments join")
	rootCmd.PersistentFlags().String("deploy-domain", "", "Base domain for Traefik host rules")

	// Event bus flags
	rootCmd.PersistentFlags().String("redis-addr", "", "Redis address for the shared progress event bus")
	rootCmd.PersistentFlags().String("redis-channel", "shipyard:events", "Redis channel for progress events")

	// Auth flags
	rootCmd.PersistentFlags().Bool("auth-enabled", false, "Require a caller token on write endpoints")
	rootCmd.PersistentFlags().String("jwt-secret", "", "HMAC secret used to verify caller tokens")
	rootCmd.PersistentFlags().String("jwt-issuer", "shipyardd", "Expected token issuer")

	// Rate limiting flags
	rootCmd.PersistentFlags().Bool("ratelimit-enabled", true, "Limit write requests per caller")
	rootCmd.PersistentFlags().Int("ratelimit-submits", 6, "Archive submissions allowed per caller per minute")
	rootCmd.PersistentFlags().Int("ratelimit-writes", 60, "Other write requests allowed per caller per minute")

	// Bind flags to viper
	_ = viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("server.bind", rootCmd.PersistentFlags().Lookup("bind"))
	_ = viper.BindPFlag("server.max_upload_bytes", rootCmd.PersistentFlags().Lookup("max-upload"))
	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db-path"))
	_ = viper.BindPFlag("storage.type", rootCmd.PersistentFlags().Lookup("storage-type"))
	_ = viper.BindPFlag("storage.local.path", rootCmd.PersistentFlags().Lookup("storage-path"))
	_ = viper.BindPFlag("storage.s3.endpoint", rootCmd.PersistentFlags().Lookup("s3-endpoint"))
	_ = viper.BindPFlag("storage.s3.region", rootCmd.PersistentFlags().Lookup("s3-region"))
	_ = viper.BindPFlag("storage.s3.bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	_ = viper.BindPFlag("storage.s3.access_key", rootCmd.PersistentFlags().Lookup("s3-access-key"))
	_ = viper.BindPFlag("storage.s3.secret_key", rootCmd.PersistentFlags().Lookup("s3-secret-key"))
	_ = viper.BindPFlag("storage.s3.path_style", rootCmd.PersistentFlags().Lookup("s3-path-style"))
	_ = viper.BindPFlag("build.workspace", rootCmd.PersistentFlags().Lookup("build-workspace"))
	_ = viper.BindPFlag("build.engine", rootCmd.PersistentFlags().Lookup("engine"))
	_ = viper.BindPFlag("build.timeout", rootCmd.PersistentFlags().Lookup("build-timeout"))
	_ = viper.BindPFlag("build.template_dir", rootCmd.PersistentFlags().Lookup("template-dir"))
	_ = viper.BindPFlag("build.privileged_policy", rootCmd.PersistentFlags().Lookup("privileged-policy"))
	_ = viper.BindPFlag("build.workers", rootCmd.PersistentFlags().Lookup("build-workers"))
	_ = viper.BindPFlag("registry.timeout", rootCmd.PersistentFlags().Lookup("registry-timeout"))
	_ = viper.BindPFlag("registry.scanner", rootCmd.PersistentFlags().Lookup("scanner"))
	_ = viper.BindPFlag("deploy.network", rootCmd.PersistentFlags().Lookup("deploy-network"))
	_ = viper.BindPFlag("deploy.domain", rootCmd.PersistentFlags().Lookup("deploy-domain"))
	_ = viper.BindPFlag("events.redis.addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
	_ = viper.BindPFlag("events.redis.channel", rootCmd.PersistentFlags().Lookup("redis-channel"))
	_ = viper.BindPFlag("auth.enabled", rootCmd.PersistentFlags().Lookup("auth-enabled"))
	_ = viper.BindPFlag("auth.jwt_secret", rootCmd.PersistentFlags().Lookup("jwt-secret"))
	_ = viper.BindPFlag("auth.issuer", rootCmd.PersistentFlags().Lookup("jwt-issuer"))
	_ = viper.BindPFlag("ratelimit.enabled", rootCmd.PersistentFlags().Lookup("ratelimit-enabled"))
	_ = viper.BindPFlag("ratelimit.submits_per_min", rootCmd.PersistentFlags().Lookup("ratelimit-submits"))
	_ = viper.BindPFlag("ratelimit.writes_per_min", rootCmd.PersistentFlags().Lookup("ratelimit-writes"))

	// Set defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.bind", "0.0.0.0")
	viper.SetDefault("server.max_upload_bytes", 200<<20)
	viper.SetDefault("database.path", "~/.shipyardd/shipyardd.db")
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.path", "~/.shipyardd/artifacts")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.bucket", "shipyard-artifacts")
	viper.SetDefault("storage.s3.path_style", true)
	viper.SetDefault("build.workspace", "~/.shipyardd/workspaces")
	viper.SetDefault("build.workers", 2)
	viper.SetDefault("build.engine", "docker")
	viper.SetDefault("build.timeout", "10m")
	viper.SetDefault("build.privileged_policy", "block")
	viper.SetDefault("build.log_buffer_lines", build.DefaultLogBufferLines)
	viper.SetDefault("build.max_extract_bytes", build.DefaultMaxExtractBytes)
	viper.SetDefault("build.max_extract_entries", build.DefaultMaxExtractEntries)
	viper.SetDefault("registry.timeout", "120s")
	viper.SetDefault("registry.scanner", "auto")
	viper.SetDefault("events.redis.channel", "shipyard:events")
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.issuer", "shipyardd")
	viper.SetDefault("ratelimit.enabled", true)
	viper.SetDefault("ratelimit.submits_per_min", 6)
	viper.SetDefault("ratelimit.writes_per_min", 60)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() error {
	opts := cli.DefaultConfigOptions("shipyardd", "SHIPYARDD")
	opts.ConfigFile = cfgFile

	if err := cli.InitConfig(opts); err != nil {
		return err
	}

	log = cli.InitLogger("shipyardd")
	return nil
}

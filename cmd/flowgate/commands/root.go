// Package commands provides the CLI commands for flowgate.
package commands

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ineyio/flowgate"
	"github.com/ineyio/flowgate/internal/logging"
	"github.com/ineyio/flowgate/registry"
)

// Version is set at build time.
var Version = "0.1.0"

// Global flags
var (
	configPath string
	envFiles   []string
	logLevel   string
	logPretty  bool
)

var rootCmd = &cobra.Command{
	Use:   "flowgate",
	Short: "Streaming gateway for attack-flow extraction",
	Long: `flowgate turns threat reports into MITRE ATT&CK attack-flow graphs by
streaming them through a configured LLM backend (Anthropic, OpenAI or a
local Ollama server).

Run 'flowgate serve' to start the HTTP gateway, or 'flowgate analyze' to
extract a flow from a file on the command line.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Dotenv files layered under the process environment (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR), overrides config")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "Human-readable console logs")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(analyzeCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// runtime is what every command needs before doing work.
type runtime struct {
	config   flowgate.Config
	env      flowgate.Env
	registry *registry.Registry
	logger   zerolog.Logger
}

func setup(logOutput io.Writer) (*runtime, error) {
	cfg := flowgate.DefaultConfig()
	if configPath != "" {
		loaded, err := flowgate.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if logOutput == nil {
		logOutput = os.Stderr
	}
	logger := logging.Init(logging.Config{
		Level:  logging.ParseLevel(level),
		Output: logOutput,
		Pretty: cfg.Log.Pretty || logPretty,
	})

	files := cfg.EnvFiles
	if len(envFiles) > 0 {
		files = envFiles
	}
	env, err := flowgate.LoadEnv(files...)
	if err != nil {
		return nil, err
	}

	var opts []registry.Option
	if cfg.DefaultProvider != "" {
		opts = append(opts, registry.WithDefaultProvider(cfg.DefaultProvider))
	}

	return &runtime{
		config:   cfg,
		env:      env,
		registry: registry.New(env, opts...),
		logger:   logger,
	}, nil
}

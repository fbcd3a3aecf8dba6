package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/cloudwhisper/internal/adapters/analysis/anthropic"
	"github.com/bnema/cloudwhisper/internal/adapters/analysis/openai"
	awsclient "github.com/bnema/cloudwhisper/internal/adapters/cloud/aws"
	tomlrepo "github.com/bnema/cloudwhisper/internal/adapters/repo/toml"
	passstore "github.com/bnema/cloudwhisper/internal/adapters/secrets/pass"
	"github.com/bnema/cloudwhisper/internal/adapters/worker"
	"github.com/bnema/cloudwhisper/internal/application"
	"github.com/spf13/viper"
)

const (
	configDirName  = ".cloudwhisper"
	configFileName = "config.toml"
	envPrefix      = "CW"

	keySecretsDir        = "secrets.dir"
	keyPassPrefix        = "secrets.pass_prefix"
	keyWorkerStart       = "worker.start_timeout"
	keyWorkerCall        = "worker.call_timeout"
	keyWorkerStopGrace   = "worker.stop_grace"
	keyContextMaxItems   = "context.max_items"
	keyOpenAIKey         = "ai.openai.api_key"
	keyOpenAIModel       = "ai.openai.model"
	keyOpenAIBaseURL     = "ai.openai.base_url"
	keyAnthropicKey      = "ai.anthropic.api_key"
	keyAnthropicModel    = "ai.anthropic.model"
	keyAnthropicBaseURL  = "ai.anthropic.base_url"
	keyAWSDefaultRegion  = "aws.default_region"
	keyAWSBucketRPS      = "aws.bucket_rps"
	keyAWSObjectSample   = "aws.object_sample"
	keyLogLevel          = "log.level"
	keyLogFile           = "log.file"
	keyDefaultAccount    = "accounts.default"
	openAIKeyEnvFallback = "OPENAI_API_KEY"
	anthropicEnvFallback = "ANTHROPIC_API_KEY"
)

// loadConfig reads ~/.cloudwhisper/config.toml when present. Every key can
// be overridden from the environment as CW_<SECTION>_<KEY>.
func loadConfig() (*viper.Viper, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	configDir := filepath.Join(homeDir, configDirName)

	v := viper.New()
	setDefaults(v, configDir)

	v.SetConfigFile(filepath.Join(configDir, configFileName))
	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(keyOpenAIKey, "CW_AI_OPENAI_API_KEY", openAIKeyEnvFallback)
	_ = v.BindEnv(keyAnthropicKey, "CW_AI_ANTHROPIC_API_KEY", anthropicEnvFallback)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return v, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault(tomlrepo.AccountsPathKey, filepath.Join(configDir, "accounts.toml"))
	v.SetDefault(keyDefaultAccount, "default")
	v.SetDefault(keySecretsDir, filepath.Join(configDir, "secrets"))
	v.SetDefault(keyPassPrefix, passstore.DefaultPrefix)
	v.SetDefault(keyWorkerStart, worker.DefaultStartTimeout)
	v.SetDefault(keyWorkerCall, worker.DefaultCallTimeout)
	v.SetDefault(keyWorkerStopGrace, worker.DefaultStopGrace)
	v.SetDefault(keyContextMaxItems, application.DefaultContextItems)
	v.SetDefault(keyOpenAIModel, openai.DefaultModel)
	v.SetDefault(keyOpenAIBaseURL, openai.DefaultBaseURL)
	v.SetDefault(keyAnthropicModel, anthropic.DefaultModel)
	v.SetDefault(keyAnthropicBaseURL, anthropic.DefaultBaseURL)
	v.SetDefault(keyAWSDefaultRegion, awsclient.DefaultRegion)
	v.SetDefault(keyAWSBucketRPS, awsclient.DefaultBucketRPS)
	v.SetDefault(keyAWSObjectSample, awsclient.DefaultObjectSample)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFile, "")
}

func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}

	return fallback
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

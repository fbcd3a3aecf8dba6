package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokerHelperEnv makes the test binary behave like cw so the worker
// launcher can re-execute it as the broker.
const brokerHelperEnv = "CW_TEST_RUN_AS_CLI"

func TestMain(m *testing.M) {
	if os.Getenv(brokerHelperEnv) == "1" {
		if err := Execute(); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	os.Exit(m.Run())
}

func TestVersionPrintsVersion(t *testing.T) {
	home := isolatedHome(t)

	stdout, _, err := executeCLI(t, home, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestRemovedCommandIsUnknown(t *testing.T) {
	home := isolatedHome(t)

	_, _, err := executeCLI(t, home, "usage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command \"usage\"")
}

func TestAccountAddListRemove(t *testing.T) {
	home := isolatedHome(t)

	stdout, _, err := executeCLI(t, home,
		"account", "add", "prod",
		"--name", "Production",
		"--region", "eu-west-1",
		"--access-key-id", "AKIAPROD",
		"--secret-access-key", "prod-secret",
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Saved account prod (key pair)")

	secretPath := filepath.Join(home, ".cloudwhisper", "secrets", "aws", "prod", "credentials")
	raw, err := os.ReadFile(secretPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "AKIAPROD")

	accounts, err := os.ReadFile(filepath.Join(home, ".cloudwhisper", "accounts.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(accounts), "aws://prod/credentials")
	assert.NotContains(t, string(accounts), "prod-secret")

	_, _, err = executeCLI(t, home, "account", "add", "dev", "--profile", "dev-profile")
	require.NoError(t, err)

	stdout, _, err = executeCLI(t, home, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Production")
	assert.Contains(t, stdout, "eu-west-1")
	assert.Contains(t, stdout, "profile dev-profile")

	stdout, _, err = executeCLI(t, home, "account", "remove", "prod")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Removed account prod")

	_, err = os.Stat(secretPath)
	assert.True(t, os.IsNotExist(err))

	stdout, _, err = executeCLI(t, home, "account", "list")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Production")
}

func TestAccountAddRequiresBothKeyFlags(t *testing.T) {
	home := isolatedHome(t)

	_, _, err := executeCLI(t, home, "account", "add", "prod", "--access-key-id", "AKIA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must all be set")
}

func TestAccountRemoveMissingAccount(t *testing.T) {
	home := isolatedHome(t)

	_, _, err := executeCLI(t, home, "account", "remove", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account not found")
}

func TestAccountImportFromLegacyYAML(t *testing.T) {
	home := isolatedHome(t)
	legacy := filepath.Join(t.TempDir(), "cloud_accounts.yaml")
	require.NoError(t, os.WriteFile(legacy, []byte(`aws_accounts:
  default:
    name: Default Account
    region: us-east-1
    access_key: AKIADEFAULT
    secret_key: default-secret
  staging:
    name: Staging
    region: eu-west-1
`), 0o600))

	stdout, _, err := executeCLI(t, home, "account", "import", "--from", legacy)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Imported 2 account(s)")

	stdout, _, err = executeCLI(t, home, "account", "import", "--from", legacy)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Imported 0 account(s), skipped 2 existing: default, staging")

	stdout, _, err = executeCLI(t, home, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Default Account")
	assert.Contains(t, stdout, "key pair")
	assert.Contains(t, stdout, "ambient")
}

func TestConfigFileSelectsYAMLAccountStore(t *testing.T) {
	home := isolatedHome(t)
	yamlPath := filepath.Join(home, "accounts.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`aws_accounts:
  ops:
    name: Operations
    region: ap-southeast-2
`), 0o600))
	writeConfig(t, home, "[accounts]\npath = \""+filepath.ToSlash(yamlPath)+"\"\n")

	stdout, _, err := executeCLI(t, home, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Operations")
	assert.Contains(t, stdout, "ap-southeast-2")
}

func TestEnvironmentOverridesAccountsPath(t *testing.T) {
	home := isolatedHome(t)
	custom := filepath.Join(t.TempDir(), "custom.toml")
	t.Setenv("CW_ACCOUNTS_PATH", custom)

	_, _, err := executeCLI(t, home, "account", "add", "edge", "--region", "sa-east-1")
	require.NoError(t, err)

	raw, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "edge")
	assert.Contains(t, string(raw), "sa-east-1")
}

func TestConfigValidateReportsPlaceholderKeys(t *testing.T) {
	home := isolatedHome(t)
	t.Setenv("OPENAI_API_KEY", "sk-your-openai-key")

	stdout, _, err := executeCLI(t, home, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[warn] openai: looks like a placeholder")
	assert.Contains(t, stdout, "[warn] anthropic: not set")
	assert.Contains(t, stdout, "[warn] analysis:")
	assert.Contains(t, stdout, "[warn] accounts:")
}

func TestConfigValidateFailsOnMissingCredentials(t *testing.T) {
	home := isolatedHome(t)
	writeAccounts(t, home, `version = 1

[[accounts]]
id = 'prod'
name = 'Production'
provider = 'aws'
credential_ref = 'aws://prod/credentials'
`)

	stdout, _, err := executeCLI(t, home, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration has 1 error(s)")
	assert.Contains(t, stdout, "[error] account prod: credentials unreadable")
}

func TestInvalidLogLevelIsReported(t *testing.T) {
	home := isolatedHome(t)
	writeConfig(t, home, "[log]\nlevel = \"loud\"\n")

	_, _, err := executeCLI(t, home, "ask", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log.level")
}

func TestToolsListSpawnsBroker(t *testing.T) {
	home := brokerHome(t)

	stdout, _, err := executeCLI(t, home, "tools", "list")
	require.NoError(t, err)
	for _, name := range []string{
		"list_providers", "switch_provider", "list_accounts", "switch_account",
		"get_current_provider", "list_instances", "list_storage_buckets", "get_monitoring_alerts",
	} {
		assert.Contains(t, stdout, name)
	}
}

func TestChatSessionCommands(t *testing.T) {
	home := brokerHome(t)
	writeAccounts(t, home, `version = 1

[[accounts]]
id = 'default'
name = 'Default Account'
provider = 'aws'
region = 'us-east-1'
`)

	input := strings.Join([]string{
		"help",
		"tools",
		"providers",
		"accounts",
		"switch provider gcp",
		"switch account ghost",
		"switch",
		"history",
		"bye",
	}, "\n") + "\n"

	stdout, _, err := executeCLIWithInput(t, home, input, "chat", "--plain")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Connected to Default Account (default)")
	assert.Contains(t, stdout, "Commands:")
	assert.Contains(t, stdout, "list_storage_buckets")
	assert.Contains(t, stdout, "* aws")
	assert.Contains(t, stdout, "* default - Default Account (us-east-1)")
	assert.Contains(t, stdout, "Failed to switch provider")
	assert.Contains(t, stdout, "Failed to switch account")
	assert.Contains(t, stdout, "Usage: switch account <id>")
	assert.Contains(t, stdout, "No conversation history yet.")
	assert.Contains(t, stdout, "[Default Account (default)] > ")
	assert.Contains(t, stdout, "Goodbye.")
}

func TestChatEndsAtEndOfInput(t *testing.T) {
	home := brokerHome(t)

	stdout, _, err := executeCLIWithInput(t, home, "current\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Provider: aws")
	assert.NotContains(t, stdout, "Goodbye.")
}

func TestAskFallsBackToBuiltInSummary(t *testing.T) {
	home := brokerHome(t)

	stdout, _, err := executeCLI(t, home, "ask", "--json", "how", "many", "instances?")
	require.NoError(t, err)

	var out askOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "how many instances?", out.Question)
	assert.Equal(t, "fallback", out.Backend)
	assert.NotEmpty(t, out.Answer)
	assert.NotEmpty(t, out.TurnID)
}

func TestStatusShowsBrokerState(t *testing.T) {
	home := brokerHome(t)

	stdout, _, err := executeCLI(t, home, "status", "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"Worker": "ready"`)
	assert.Contains(t, stdout, `"Provider": "aws"`)
	assert.Contains(t, stdout, `"Backend": "fallback"`)

	stdout, _, err = executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Cloud Inventory Status")
	assert.Contains(t, stdout, "ready")
}

func TestForwardWriterFiltersBrokerEvents(t *testing.T) {
	var events, plain bytes.Buffer
	w := &forwardWriter{events: &events, plain: &plain, min: zerolog.WarnLevel}

	_, err := w.Write([]byte(`{"level":"debug","message":"noise"}` + "\n" + `{"level":"error",`))
	require.NoError(t, err)
	assert.Empty(t, events.String())

	_, err = w.Write([]byte(`"message":"boom"}` + "\npanic: something\n"))
	require.NoError(t, err)

	assert.Equal(t, `{"level":"error","message":"boom"}`+"\n", events.String())
	assert.Equal(t, "panic: something\n", plain.String())
}

// isolatedHome points HOME and every credential source at an empty
// directory.
func isolatedHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	for _, key := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"CW_ACCOUNTS_PATH", "CW_LOG_FILE", "CW_LOG_LEVEL",
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN", "AWS_PROFILE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("PASSWORD_STORE_DIR", filepath.Join(home, "no-password-store"))
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(home, "no-aws-config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(home, "no-aws-credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	return home
}

// brokerHome is isolatedHome plus the switch that lets the worker launcher
// run this test binary as the broker.
func brokerHome(t *testing.T) string {
	t.Helper()

	home := isolatedHome(t)
	t.Setenv(brokerHelperEnv, "1")
	return home
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIWithInput(t, home, "", args...)
}

func executeCLIWithInput(t *testing.T, home string, input string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := newRootCmd()
	stdout := &syncBuffer{}
	stderr := &syncBuffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, home, content string) {
	t.Helper()

	dir := filepath.Join(home, ".cloudwhisper")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600))
}

func writeAccounts(t *testing.T, home, content string) {
	t.Helper()

	dir := filepath.Join(home, ".cloudwhisper")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts.toml"), []byte(content), 0o600))
}

// syncBuffer is written by the broker's stderr relay and the command at
// the same time.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

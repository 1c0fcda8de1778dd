package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "config-test")
	require.NoError(t, err, "无法创建临时目录")
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644), "无法写入临时配置文件")
	return configPath
}

// TestLoadConfig_OverridesDefaults 文件中出现的字段覆盖默认值，其余保持默认
func TestLoadConfig_OverridesDefaults(t *testing.T) {
	configPath := writeTempConfig(t, `
parser_strategy: LLM
chat:
  temperature: 0.5
  fallback_policy: propagate
aliyun:
  model: qwen-max
  task_models:
    cv_parse: qwen-turbo
server:
  address: ":9090"
  api_keys: ["k1", "k2"]
`)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err, "合法配置不应返回错误")
	require.NotNil(t, cfg)

	assert.Equal(t, ParserStrategyLLM, cfg.ParserStrategy, "解析策略应被规范化为小写")
	assert.Equal(t, 0.5, cfg.Chat.Temperature)
	assert.Equal(t, 500, cfg.Chat.MaxTokens, "未配置的 max_tokens 应保持默认值")
	assert.Equal(t, FallbackPropagate, cfg.Chat.FallbackPolicy)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.Equal(t, "X-Session-ID", cfg.Server.SessionHeader)

	assert.Equal(t, "qwen-turbo", cfg.GetModelForTask("cv_parse"), "任务专用模型应优先")
	assert.Equal(t, "qwen-max", cfg.GetModelForTask("chat"), "没有专用模型时使用默认模型")
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"未知解析策略", "parser_strategy: ocr\n"},
		{"未知对话失败策略", "chat:\n  fallback_policy: retry_forever\n"},
		{"未知会话存储", "session:\n  backend: etcd\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeTempConfig(t, tt.content))
			assert.Error(t, err, "非法配置应返回错误")
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err, "指定的配置文件不存在时应返回错误")
}

func TestLoadConfig_BrokenYAML(t *testing.T) {
	_, err := LoadConfig(writeTempConfig(t, "chat: [unclosed\n"))
	assert.Error(t, err, "YAML 语法错误应返回错误")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ALIYUN_API_KEY", "env-key")
	t.Setenv("GEMINI_API_KEY", "gemini-env-key")
	t.Setenv("CV_PARSER_STRATEGY", "llm")

	cfg, err := LoadConfig(writeTempConfig(t, "aliyun:\n  api_key: file-key\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Aliyun.APIKey, "环境变量应覆盖文件中的 API Key")
	assert.Equal(t, "gemini-env-key", cfg.Gemini.APIKey)
	assert.Equal(t, ParserStrategyLLM, cfg.ParserStrategy)
}

func TestCreateSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, CreateSampleConfig(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err, "示例配置应能被重新加载")
	assert.Equal(t, ParserStrategyRegex, cfg.ParserStrategy)
	assert.Equal(t, 0.2, cfg.Chat.Temperature)

	assert.Error(t, CreateSampleConfig(path), "已存在的文件不应被覆盖")
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, GetDuration("30s", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("soon", time.Minute), "无法解析时使用默认值")
}

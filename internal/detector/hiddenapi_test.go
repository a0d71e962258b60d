package detector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
)

func newHiddenAPIDetector(runner *fakeRunner) *HiddenAPIDetector {
	return NewHiddenAPIDetector(newProps(runner), quietLogger())
}

// TestHiddenAPIDetector_PolicyUntouched 测试策略未修改时不产生信号
func TestHiddenAPIDetector_PolicyUntouched(t *testing.T) {
	runner := newFakeRunner()
	runner.set("null", "settings", "get", "global", "hidden_api_policy")
	runner.set("null", "settings", "get", "global", "hidden_api_policy_pre_p_apps")
	runner.set("null", "settings", "get", "global", "hidden_api_policy_p_apps")

	signals, err := newHiddenAPIDetector(runner).Detect(context.Background())

	require.NoError(t, err)
	assert.Empty(t, signals)
}

// TestHiddenAPIDetector_PolicyRelaxed 测试策略被放宽
func TestHiddenAPIDetector_PolicyRelaxed(t *testing.T) {
	tests := []struct {
		name   string
		policy string
	}{
		{"完全放开", "0"},
		{"仅告警", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.set(tt.policy, "settings", "get", "global", "hidden_api_policy")

			signals, err := newHiddenAPIDetector(runner).Detect(context.Background())

			require.NoError(t, err)
			require.Len(t, signals, 1)
			assert.Equal(t, domain.CategoryDebuggable, signals[0].Category)
			assert.Equal(t, tt.policy, signals[0].Evidence["policy"])
			assert.Equal(t, "hidden_api_policy", signals[0].Evidence["setting"])
		})
	}
}

// TestHiddenAPIDetector_EnforcedPolicyNotFlagged 测试强制执行值不告警
func TestHiddenAPIDetector_EnforcedPolicyNotFlagged(t *testing.T) {
	runner := newFakeRunner()
	runner.set("2", "settings", "get", "global", "hidden_api_policy")

	signals, err := newHiddenAPIDetector(runner).Detect(context.Background())

	require.NoError(t, err)
	assert.Empty(t, signals)
}

// TestHiddenAPIDetector_SingleSignalForMultipleSettings 测试多项设置只产生一条信号
func TestHiddenAPIDetector_SingleSignalForMultipleSettings(t *testing.T) {
	runner := newFakeRunner()
	runner.set("1", "settings", "get", "global", "hidden_api_policy")
	runner.set("1", "settings", "get", "global", "hidden_api_policy_pre_p_apps")
	runner.set("1", "settings", "get", "global", "hidden_api_policy_p_apps")

	signals, err := newHiddenAPIDetector(runner).Detect(context.Background())

	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

// TestHiddenAPIDetector_LegacySettingFallback 测试旧版设置项的回退检查
func TestHiddenAPIDetector_LegacySettingFallback(t *testing.T) {
	runner := newFakeRunner()
	runner.set("null", "settings", "get", "global", "hidden_api_policy")
	runner.set("0", "settings", "get", "global", "hidden_api_policy_pre_p_apps")

	signals, err := newHiddenAPIDetector(runner).Detect(context.Background())

	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "hidden_api_policy_pre_p_apps", signals[0].Evidence["setting"])
}

// TestHiddenAPIDetector_Name 测试检测器名称
func TestHiddenAPIDetector_Name(t *testing.T) {
	assert.Equal(t, "hiddenapi", newHiddenAPIDetector(newFakeRunner()).Name())
}

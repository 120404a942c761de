package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json标记围栏",
			input:    "```json\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "无标记围栏",
			input:    "```\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "无围栏原样返回",
			input:    `{"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "只有前围栏",
			input:    "```json\n{\"a\": 1}",
			expected: `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripCodeFences(tt.input), "围栏剥离结果不符")
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	t.Run("带前后说明文字", func(t *testing.T) {
		input := "Here is the result:\n{\"name\": \"Ada\"}\nHope this helps!"
		assert.Equal(t, `{"name": "Ada"}`, extractJSONObject(input))
	})

	t.Run("嵌套对象配平", func(t *testing.T) {
		input := `prefix {"outer": {"inner": [1, 2]}} suffix`
		assert.Equal(t, `{"outer": {"inner": [1, 2]}}`, extractJSONObject(input))
	})

	t.Run("没有JSON对象", func(t *testing.T) {
		assert.Empty(t, extractJSONObject("no json here"))
	})

	t.Run("括号不配平", func(t *testing.T) {
		assert.Empty(t, extractJSONObject(`{"broken": [1, 2`))
	})
}

func TestSanitizeJSON_RepairsUnescapedQuotes(t *testing.T) {
	// 字符串值内部的未转义双引号是LLM输出最常见的坏法
	broken := `{"experience": ["Led the "Phoenix" migration project"]}`

	var target struct {
		Experience []string `json:"experience"`
	}
	require.Error(t, json.Unmarshal([]byte(broken), &target), "修复前应无法反序列化")

	repaired := sanitizeJSON(broken)
	require.NoError(t, json.Unmarshal([]byte(repaired), &target), "修复后应能反序列化")
	require.Len(t, target.Experience, 1)
	assert.Equal(t, `Led the "Phoenix" migration project`, target.Experience[0])
}

func TestSanitizeJSON_LeavesValidJSONIntact(t *testing.T) {
	valid := `{"name": "Ada", "skills": ["Go", "SQL"], "job_role": null}`

	repaired := sanitizeJSON(valid)

	var before, after map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(valid), &before))
	require.NoError(t, json.Unmarshal([]byte(repaired), &after), "合法JSON修复后必须仍然合法")
	assert.Equal(t, before, after, "合法JSON不应被修复改变语义")
}

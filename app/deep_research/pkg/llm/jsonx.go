package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON 响应中没有找到 JSON 片段
var ErrNoJSON = errors.New("no json found in response")

var (
	fenceOpenRe   = regexp.MustCompile("```(?:json|JSON)?\\s*")
	arrayLazyRe   = regexp.MustCompile(`(?s)\[.*?\]`)
	arrayGreedyRe = regexp.MustCompile(`(?s)\[.*\]`)
	objectRe      = regexp.MustCompile(`(?s)\{.*\}`)
)

// StripFences 去掉 markdown 代码块标记
func StripFences(s string) string {
	return strings.TrimSpace(fenceOpenRe.ReplaceAllString(s, ""))
}

// DecodeStringArray 从响应中取第一个 JSON 字符串数组。
// 先尝试最短匹配，失败再尝试最长匹配，以兼容被散文包裹或含嵌套括号的输出
func DecodeStringArray(text string) ([]string, error) {
	text = StripFences(text)
	var lastErr error = ErrNoJSON
	for _, re := range []*regexp.Regexp{arrayLazyRe, arrayGreedyRe} {
		m := re.FindString(text)
		if m == "" {
			continue
		}
		var out []string
		if err := json.Unmarshal([]byte(m), &out); err != nil {
			lastErr = fmt.Errorf("decode array: %w", err)
			continue
		}
		return out, nil
	}
	return nil, lastErr
}

// ExtractObject 返回响应中第一个 '{' 到最后一个 '}' 之间的片段
func ExtractObject(text string) (string, error) {
	m := objectRe.FindString(StripFences(text))
	if m == "" {
		return "", ErrNoJSON
	}
	return m, nil
}

// DecodeObject 将响应中的 JSON 对象解码到 v
func DecodeObject(text string, v any) error {
	raw, err := ExtractObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode object: %w", err)
	}
	return nil
}

// BoundedJSON 序列化 v 并按字符截断，用于控制提示词长度
func BoundedJSON(v any, limit int) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	r := []rune(string(b))
	if limit > 0 && len(r) > limit {
		return string(r[:limit])
	}
	return string(b)
}

package normalize

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Variant 为变体映射中的一项，Width/Height 仅在上游给出数字时非空。
type Variant struct {
	Key    string
	URL    string
	Width  *float64
	Height *float64
}

// Selector 从变体列表中挑出一个最佳 URL；ok=false 表示没有可用 URL。
type Selector interface {
	Select(variants []Variant) (url string, ok bool)
}

// Scorer 给单个变体打分，分数越高越好。
type Scorer interface {
	Score(v Variant) float64
}

// unsizedScore 为既无尺寸也无数字键名（如 "orig"）的变体分数，
// 使未标注尺寸的原图排在任何显式小尺寸之前。
const unsizedScore = 999999

var firstDigits = regexp.MustCompile(`\d+`)

// AreaScorer 为默认打分策略：
// - 宽高均为数字：面积
// - 否则取键名中第一段数字（"1200x" -> 1200，"600x900" -> 600）
// - 否则：固定高分 999999
type AreaScorer struct{}

func (AreaScorer) Score(v Variant) float64 {
	if v.Width != nil && v.Height != nil {
		return *v.Width * *v.Height
	}
	if m := firstDigits.FindString(v.Key); m != "" {
		if n, err := strconv.ParseFloat(m, 64); err == nil {
			return n
		}
	}
	return unsizedScore
}

// ScoreSelector 按 Scorer 从左到右扫描，严格大于才替换，平分时先出现者胜。
type ScoreSelector struct {
	Scorer Scorer
}

func (s ScoreSelector) Select(variants []Variant) (string, bool) {
	scorer := s.Scorer
	if scorer == nil {
		scorer = AreaScorer{}
	}
	best, found := "", false
	var bestScore float64
	for _, v := range variants {
		if v.URL == "" {
			continue
		}
		sc := scorer.Score(v)
		if !found || sc > bestScore {
			best, bestScore, found = v.URL, sc, true
		}
	}
	return best, found
}

// DefaultSelector 为面积优先的默认选择器。
var DefaultSelector Selector = ScoreSelector{Scorer: AreaScorer{}}

// ParseVariants 按原始键顺序解析变体映射。
// 非对象输入返回 nil；缺少字符串 url 的变体保留但 URL 为空，由选择器跳过。
func ParseVariants(raw json.RawMessage) []Variant {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	var out []Variant
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return out
		}
		key, _ := kt.(string)
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return out
		}
		out = append(out, parseVariant(key, val))
	}
	return out
}

func parseVariant(key string, raw json.RawMessage) Variant {
	v := Variant{Key: key}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return v
	}
	v.URL = stringField(fields, "url")
	v.Width = numberField(fields, "width")
	v.Height = numberField(fields, "height")
	return v
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func numberField(fields map[string]json.RawMessage, key string) *float64 {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	// null 会被 Unmarshal 静默解析为 0，这里只接受数字字面量。
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return &f
}

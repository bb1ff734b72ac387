// 包 normalize 把上游形状不一的图片对象归一化为 model.Pin：
// - 图片：media.images → images → image_url → thumbnail_url
// - 标题：title → description → alt_text → ""
// - ID：上游 id → 解析出的图片 URL
// 无法解析出图片的对象直接丢弃，不视为错误。
package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"go-pin-slideshow/internal/model"
)

// Normalizer 持有变体选择策略。零值使用 DefaultSelector。
type Normalizer struct {
	Selector Selector
}

// Default 为使用默认选择器的归一化器。
var Default = Normalizer{Selector: DefaultSelector}

// Pin 归一化单个上游对象；ok=false 表示不可用。
func (n Normalizer) Pin(raw model.RawPin) (model.Pin, bool) {
	if raw == nil {
		return model.Pin{}, false
	}
	image := n.image(raw)
	if image == "" {
		return model.Pin{}, false
	}
	p := model.Pin{
		ID:    firstNonEmpty(Scalar(raw["id"]), image),
		Title: firstNonEmpty(Scalar(raw["title"]), Scalar(raw["description"]), Scalar(raw["alt_text"])),
		Image: image,
	}
	if link := Scalar(raw["link"]); link != "" {
		p.Link = &link
	}
	return p, true
}

// Collection 按输入顺序归一化并丢弃不可用对象。
func (n Normalizer) Collection(items []model.RawPin) []model.Pin {
	out := make([]model.Pin, 0, len(items))
	for _, it := range items {
		if p, ok := n.Pin(it); ok {
			out = append(out, p)
		}
	}
	return out
}

// Document 读取 {"items": [...]}；items 缺失或不是数组时视为空。
func (n Normalizer) Document(body []byte) []model.Pin {
	var doc struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return []model.Pin{}
	}
	return n.Collection(Items(doc.Items))
}

func (n Normalizer) image(raw model.RawPin) string {
	sel := n.Selector
	if sel == nil {
		sel = DefaultSelector
	}
	if media, ok := raw["media"]; ok {
		var m map[string]json.RawMessage
		if json.Unmarshal(media, &m) == nil {
			if u, ok := sel.Select(ParseVariants(m["images"])); ok {
				return u
			}
		}
	}
	if images, ok := raw["images"]; ok {
		if u, ok := sel.Select(ParseVariants(images)); ok {
			return u
		}
	}
	return firstNonEmpty(Scalar(raw["image_url"]), Scalar(raw["thumbnail_url"]))
}

// Items 把 JSON 数组解析为上游对象列表；非数组返回空，非对象元素被跳过。
func Items(raw json.RawMessage) []model.RawPin {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}
	out := make([]model.RawPin, 0, len(elems))
	for _, e := range elems {
		var obj model.RawPin
		if err := json.Unmarshal(e, &obj); err != nil || obj == nil {
			continue
		}
		out = append(out, obj)
	}
	return out
}

// Pin 使用 Default 归一化单个对象。
func Pin(raw model.RawPin) (model.Pin, bool) {
	return Default.Pin(raw)
}

// Collection 使用 Default 归一化列表。
func Collection(items []model.RawPin) []model.Pin {
	return Default.Collection(items)
}

// Document 使用 Default 归一化 {"items": [...]} 文档。
func Document(body []byte) []model.Pin {
	return Default.Document(body)
}

// Scalar 读取字符串或数字字段，其它类型视为缺失。
func Scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch {
	case raw[0] == '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		var num json.Number
		if json.Unmarshal(raw, &num) != nil {
			return ""
		}
		return num.String()
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

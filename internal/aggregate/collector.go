package aggregate

import "go-pin-slideshow/internal/model"

// collector 按首次出现顺序收集记录，以 id 去重并在达到上限后拒绝写入。
// 去重范围仅限一次请求（一次分页抓取或一次跨画板聚合）。
type collector struct {
	limit int
	seen  map[string]struct{}
	items []model.Pin
}

func newCollector(limit int) *collector {
	return &collector{
		limit: limit,
		seen:  make(map[string]struct{}, limit),
		items: make([]model.Pin, 0, min(limit, maxPageSize)),
	}
}

// Add 写入一条未见过的记录；重复或已满时返回 false。
func (c *collector) Add(p model.Pin) bool {
	if c.Full() {
		return false
	}
	if _, ok := c.seen[p.ID]; ok {
		return false
	}
	c.seen[p.ID] = struct{}{}
	c.items = append(c.items, p)
	return true
}

// AddAll 依次写入，返回实际新增条数。
func (c *collector) AddAll(ps []model.Pin) int {
	n := 0
	for _, p := range ps {
		if c.Full() {
			break
		}
		if c.Add(p) {
			n++
		}
	}
	return n
}

func (c *collector) Full() bool     { return len(c.items) >= c.limit }
func (c *collector) Remaining() int { return c.limit - len(c.items) }
func (c *collector) Items() []model.Pin {
	return c.items
}

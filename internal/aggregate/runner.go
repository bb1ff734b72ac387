// 包 aggregate 负责把分页的上游集合聚合成去重、限量的图片序列：
// - FetchPaged：沿 bookmark 翻页抓取单个集合
// - ListBoards：枚举当前用户的画板
// - AllPins：跨画板聚合，单个画板失败只记录并跳过
package aggregate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"go-pin-slideshow/internal/apperr"
	"go-pin-slideshow/internal/logx"
	"go-pin-slideshow/internal/model"
	"go-pin-slideshow/internal/normalize"
	"go-pin-slideshow/internal/pinterest"
)

const (
	maxTarget   = 500 // 单次请求最多返回的记录数
	maxPageSize = 50  // 图片集合每页大小上限
	maxPages    = 50  // 单次分页抓取的翻页上限，防止上游反复返回同一 bookmark

	boardPageSize = 100
	maxBoards     = 500
	maxBoardPages = 20
)

// Pager 为分页数据源，*pinterest.Client 即为实现。
type Pager interface {
	Page(ctx context.Context, pr pinterest.PageRequest) (pinterest.Page, error)
	BoardsURL() string
	BoardPinsURL(boardID string) string
}

// Options 为 Runner 构造参数。
type Options struct {
	// PageTimeout 为每页请求的截止时间，0 表示使用数据源默认值。
	PageTimeout time.Duration
	// BoardConcurrency 为并行抓取的画板数，<=1 表示严格串行。
	BoardConcurrency int
	Normalizer       normalize.Normalizer
}

// Runner 聚合执行器，本身无状态，可被并发请求共享。
type Runner struct {
	pager       Pager
	timeout     time.Duration
	concurrency int
	norm        normalize.Normalizer
}

// New 创建 Runner。
func New(p Pager, opts Options) *Runner {
	if opts.Normalizer.Selector == nil {
		opts.Normalizer = normalize.Default
	}
	return &Runner{
		pager:       p,
		timeout:     opts.PageTimeout,
		concurrency: max(1, opts.BoardConcurrency),
		norm:        opts.Normalizer,
	}
}

// ClampTarget 把目标条数限制在 [1, 500]。
func ClampTarget(n int) int {
	return min(max(n, 1), maxTarget)
}

// FetchPaged 沿 bookmark 翻页，直到凑够 target 条不重复记录、上游没有 bookmark
// 或达到 50 页上限。任一页失败则整体失败，已取到的部分结果丢弃。
func (r *Runner) FetchPaged(ctx context.Context, token, endpoint string, target int) ([]model.Pin, error) {
	target = ClampTarget(target)
	pageSize := min(target, maxPageSize)
	col := newCollector(target)
	bookmark := ""
	for pages := 0; pages < maxPages; pages++ {
		page, err := r.pager.Page(ctx, pinterest.PageRequest{
			Token:    token,
			Endpoint: endpoint,
			PageSize: pageSize,
			Bookmark: bookmark,
			Timeout:  r.timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pages+1, err)
		}
		col.AddAll(r.norm.Collection(page.Items))
		if col.Full() || page.Bookmark == "" {
			break
		}
		bookmark = page.Bookmark
	}
	return col.Items(), nil
}

// BoardPins 抓取单个画板的图片集合。
func (r *Runner) BoardPins(ctx context.Context, token, boardID string, target int) ([]model.Pin, error) {
	return r.FetchPaged(ctx, token, r.pager.BoardPinsURL(boardID), target)
}

// ListBoards 枚举画板：每页 100，最多 500 个或 20 页。任一页失败整体失败。
func (r *Runner) ListBoards(ctx context.Context, token string) ([]model.Board, error) {
	boards := make([]model.Board, 0, boardPageSize)
	bookmark := ""
	for pages := 0; pages < maxBoardPages && len(boards) < maxBoards; pages++ {
		page, err := r.pager.Page(ctx, pinterest.PageRequest{
			Token:    token,
			Endpoint: r.pager.BoardsURL(),
			PageSize: boardPageSize,
			Bookmark: bookmark,
			Timeout:  r.timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("list boards page %d: %w", pages+1, err)
		}
		for _, raw := range page.Items {
			if b, ok := pinterest.Board(raw); ok {
				boards = append(boards, b)
			}
		}
		if page.Bookmark == "" {
			break
		}
		bookmark = page.Bookmark
	}
	if len(boards) > maxBoards {
		boards = boards[:maxBoards]
	}
	return boards, nil
}

// BoardFailure 记录一个被跳过的画板。
type BoardFailure struct {
	Board model.Board
	Err   error
}

// Aggregation 为跨画板聚合结果。
type Aggregation struct {
	Items    []model.Pin
	Boards   int
	Failures []BoardFailure
}

type boardResult struct {
	pins []model.Pin
	err  error
}

// AllPins 先枚举画板，再按画板顺序抓取图片，跨画板以 id 去重，最多返回 limit 条。
// 画板枚举失败时整体失败；单个画板失败只记录并继续。
//
// 并发度大于 1 时按窗口并行预取，再按画板顺序合并：每个画板只取合并时剩余配额
// 长度的前缀，因此输出与串行执行一致（先出现者胜，画板顺序决定先后）。
func (r *Runner) AllPins(ctx context.Context, token string, limit int) (*Aggregation, error) {
	limit = ClampTarget(limit)
	boards, err := r.ListBoards(ctx, token)
	if err != nil {
		return nil, err
	}
	agg := &Aggregation{Boards: len(boards)}
	col := newCollector(limit)

	for start := 0; start < len(boards) && !col.Full(); start += r.concurrency {
		window := boards[start:min(start+r.concurrency, len(boards))]
		quota := col.Remaining()
		results := make([]boardResult, len(window))

		var g errgroup.Group
		g.SetLimit(r.concurrency)
		for i, b := range window {
			g.Go(func() error {
				pins, err := r.FetchPaged(ctx, token, r.pager.BoardPinsURL(b.ID), quota)
				results[i] = boardResult{pins: pins, err: err}
				return nil
			})
		}
		_ = g.Wait()

		for i, res := range results {
			if col.Full() {
				break
			}
			b := window[i]
			if res.err != nil {
				logBoardFailure(b, res.err)
				agg.Failures = append(agg.Failures, BoardFailure{Board: b, Err: res.err})
				continue
			}
			pins := res.pins
			if rem := col.Remaining(); len(pins) > rem {
				pins = pins[:rem]
			}
			added := col.AddAll(pins)
			logx.Debugf("画板 %s(%s) 取到 %d 条，新增 %d 条", b.Name, b.ID, len(res.pins), added)
		}
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.Canceled, "aggregate pins", err)
		}
	}
	agg.Items = col.Items()
	logx.Infof("跨画板聚合完成：画板=%d 失败=%d 条数=%d", agg.Boards, len(agg.Failures), len(agg.Items))
	return agg, nil
}

func logBoardFailure(b model.Board, err error) {
	if status := apperr.StatusOf(err); status != 0 {
		logx.Warnf("画板抓取失败，已跳过：%s(%s) 状态=%d 错误=%v", b.Name, b.ID, status, err)
		return
	}
	logx.Warnf("画板抓取失败，已跳过：%s(%s) 错误=%v", b.Name, b.ID, err)
}

package session

import (
	"context"
	"errors"
	"time"

	"github.com/TIANLI0/maskpaint/utils"
	"go.uber.org/zap"
)

// DefaultRefreshInterval 预览重算的最小间隔（约 60Hz）
const DefaultRefreshInterval = 16 * time.Millisecond

var ErrClosed = errors.New("session loop closed")

// Loop 在单个 goroutine 上串行执行所有会话操作，
// 同时负责合并辅助结果和按刷新节拍重算预览。
type Loop struct {
	session *Session
	ops     chan func(*Session)
	refresh time.Duration
	stopped chan struct{}
}

func NewLoop(s *Session, refresh time.Duration) *Loop {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	return &Loop{
		session: s,
		ops:     make(chan func(*Session)),
		refresh: refresh,
		stopped: make(chan struct{}),
	}
}

// Run 处理事件直到 ctx 结束。只能调用一次。
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)
	defer l.session.Close()

	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-l.ops:
			op(l.session)
		case task := <-l.session.Completions():
			if _, err := l.session.ApplyAssist(task); err != nil {
				utils.Logger.Debug("assist result skipped", zap.Error(err))
			}
		case <-ticker.C:
			l.session.RenderPreview()
		}
	}
}

// Do 在事件循环上执行 fn 并等待其返回
func (l *Loop) Do(ctx context.Context, fn func(*Session) error) error {
	done := make(chan error, 1)
	op := func(s *Session) {
		done <- fn(s)
	}

	select {
	case l.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrClosed
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

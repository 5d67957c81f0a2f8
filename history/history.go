// Package history 维护掩码的整图快照栈，用于撤销/重做。
package history

import (
	"github.com/TIANLI0/maskpaint/raster"
)

// DefaultLimit 撤销栈最大深度
const DefaultLimit = 20

// Entry 某一时刻掩码的完整像素快照
type Entry struct {
	Width  int
	Height int
	Pix    []byte
}

func capture(b *raster.Buffer) Entry {
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return Entry{Width: b.Width, Height: b.Height, Pix: pix}
}

func (e Entry) fits(b *raster.Buffer) bool {
	return e.Width == b.Width && e.Height == b.Height && len(e.Pix) == len(b.Pix)
}

// Manager 有界撤销栈 past 与重做栈 future。
// future 只会在 Undo 之后非空，任何新的 Snapshot 都会清空它。
type Manager struct {
	limit  int
	past   []Entry
	future []Entry
}

func New(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{limit: limit}
}

// Snapshot 在每次破坏性编辑前调用
func (m *Manager) Snapshot(b *raster.Buffer) {
	if b.Empty() {
		return
	}
	m.past = append(m.past, capture(b))
	if len(m.past) > m.limit {
		// 淘汰最旧的快照
		drop := len(m.past) - m.limit
		copy(m.past, m.past[drop:])
		for i := len(m.past) - drop; i < len(m.past); i++ {
			m.past[i] = Entry{}
		}
		m.past = m.past[:m.limit]
	}
	m.future = nil
}

// Undo 当前掩码压入 future，并恢复 past 栈顶。无可撤销时返回 false。
func (m *Manager) Undo(b *raster.Buffer) bool {
	if len(m.past) == 0 || b.Empty() {
		return false
	}
	prev := pop(&m.past)
	if !prev.fits(b) {
		return false
	}
	m.future = append(m.future, capture(b))
	copy(b.Pix, prev.Pix)
	return true
}

// Redo 当前掩码压入 past，并恢复 future 栈顶。无可重做时返回 false。
func (m *Manager) Redo(b *raster.Buffer) bool {
	if len(m.future) == 0 || b.Empty() {
		return false
	}
	next := pop(&m.future)
	if !next.fits(b) {
		return false
	}
	m.past = append(m.past, capture(b))
	copy(b.Pix, next.Pix)
	return true
}

// Reset 丢弃所有快照，用于切换图像
func (m *Manager) Reset() {
	m.past = nil
	m.future = nil
}

func (m *Manager) CanUndo() bool { return len(m.past) > 0 }
func (m *Manager) CanRedo() bool { return len(m.future) > 0 }

// Depth 返回 past 与 future 的长度
func (m *Manager) Depth() (past, future int) {
	return len(m.past), len(m.future)
}

func pop(s *[]Entry) Entry {
	st := *s
	e := st[len(st)-1]
	st[len(st)-1] = Entry{}
	*s = st[:len(st)-1]
	return e
}

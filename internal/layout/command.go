package layout

import (
	"fmt"
	"strings"
)

// Command 是宿主 UI 把键盘事件翻译后的编辑指令。
type Command string

const (
	CommandMoveUp    Command = "move_up"
	CommandMoveDown  Command = "move_down"
	CommandMoveLeft  Command = "move_left"
	CommandMoveRight Command = "move_right"
	CommandDelete    Command = "delete"
	CommandDuplicate Command = "duplicate"
)

// 方向键移动步长；精细模式（按住修饰键）使用 FineNudgeStep。
const (
	NudgeStep     = 10.0
	FineNudgeStep = 1.0
)

// ParseCommand 校验命令名。
func ParseCommand(raw string) (Command, error) {
	switch c := Command(strings.ToLower(strings.TrimSpace(raw))); c {
	case CommandMoveUp, CommandMoveDown, CommandMoveLeft, CommandMoveRight, CommandDelete, CommandDuplicate:
		return c, nil
	}
	return "", &ValidationError{Field: "command", Reason: fmt.Sprintf("unknown command %q", raw)}
}

// Dispatch 把指令作用于当前选中元素。没有选中元素或指令未产生变化时返回 false。
// 移动会按当前页面尺寸夹紧。
func (s *EditorSession) Dispatch(cmd Command, fine bool) bool {
	if s.selected == "" {
		return false
	}
	step := NudgeStep
	if fine {
		step = FineNudgeStep
	}
	page := s.PageBounds()

	switch cmd {
	case CommandMoveUp:
		return s.Nudge(s.selected, 0, -step, page.Width, page.Height)
	case CommandMoveDown:
		return s.Nudge(s.selected, 0, step, page.Width, page.Height)
	case CommandMoveLeft:
		return s.Nudge(s.selected, -step, 0, page.Width, page.Height)
	case CommandMoveRight:
		return s.Nudge(s.selected, step, 0, page.Width, page.Height)
	case CommandDelete:
		return s.DeleteElement(s.selected)
	case CommandDuplicate:
		_, ok := s.DuplicateElement(s.selected)
		return ok
	}
	return false
}

package layout

import "fmt"

// ValidationError 表示输入记录或模板不满足约束。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnknownKindError 表示元素的 type 无法识别。
type UnknownKindError struct {
	ID   string
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("element %q has unknown type %q", e.ID, e.Kind)
}

// SkippedElement 记录反序列化时被跳过的元素。
type SkippedElement struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Kind   Kind   `json:"type"`
	Reason string `json:"reason"`
}

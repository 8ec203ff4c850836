package errcode

// 通知与打印警告中使用的错误码：
// - 0：成功
// - 4xxx：单据仍可打印，但有内容被占位或省略
// - 5xxx：任务失败
const (
	OK = 0
	// ResourceMissing 表示数据记录缺少模板引用的字段，已用 {{key}} 占位。
	ResourceMissing = 4004
	// AssetUnavailable 表示图片素材已删除或超出大小限制，图片元素被留空。
	AssetUnavailable = 4005
	// TemplateGone 表示任务执行时模板已被删除，任务被跳过。
	TemplateGone = 4010
	SystemError  = 5000
)

package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voucherDesk/internal/layout"
	"voucherDesk/internal/templates"
)

// ErrNotSaved 表示会话从未保存过，无法从持久化层重新加载。
var ErrNotSaved = errors.New("editor session has no saved template")

// DefaultTemplateName 是新建空白模板的名称。
const DefaultTemplateName = "قالب جديد"

// TemplateService 是编辑器依赖的模板持久化接口。
type TemplateService interface {
	Get(ctx context.Context, id int64) (*templates.Template, error)
	Create(ctx context.Context, rec layout.TemplateRecord) (*templates.Template, error)
	Update(ctx context.Context, id int64, rec layout.TemplateRecord) (*templates.Template, error)
	UpdateContent(ctx context.Context, id int64, rec layout.TemplateRecord) (*templates.Template, error)
}

// OpenRequest 描述打开会话的方式：给定 TemplateID 时加载已有模板，否则新建空白模板。
type OpenRequest struct {
	TemplateID   string              `json:"templateId"`
	Name         string              `json:"name"`
	TemplateType layout.TemplateType `json:"templateType"`
	PageSize     layout.PageSize     `json:"pageSize"`
}

// View 是返回给前端的会话状态。
type View struct {
	SessionID  string                `json:"sessionId"`
	TemplateID string                `json:"templateId,omitempty"`
	Template   layout.TemplateRecord `json:"template"`
	Page       layout.Dimensions     `json:"page"`
	SelectedID string                `json:"selectedId,omitempty"`
	Revision   int64                 `json:"revision"`

	// SavedRevision 小于 Revision 时会话有未保存的修改。
	SavedRevision int64                   `json:"savedRevision"`
	Skipped       []layout.SkippedElement `json:"skipped,omitempty"`
}

// SaveResult 携带保存后的模板；保存期间会话被关闭时 Session 为 nil。
type SaveResult struct {
	Template *templates.Template `json:"savedTemplate"`
	Session  *View               `json:"session,omitempty"`
}

// Manager 为每个操作员会话持有一份 layout.EditorSession 的快照。
// 同一会话上的修改串行执行；不同会话互不影响。
type Manager struct {
	store     Store
	templates TemplateService
	catalog   *layout.Catalog
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock 按引用计数回收：最后一个持有或等待者释放后才从 map 中删除。
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewManager(store Store, svc TemplateService, catalog *layout.Catalog, logger *slog.Logger) *Manager {
	if catalog == nil {
		catalog = layout.DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		templates: svc,
		catalog:   catalog,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*keyLock),
	}
}

// Catalog returns the catalog sessions are laid out against.
func (m *Manager) Catalog() *layout.Catalog {
	return m.catalog
}

// Open 创建会话。加载已有模板失败时不会创建任何状态。
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*View, error) {
	snap := &Snapshot{ID: uuid.NewString()}
	var skipped []layout.SkippedElement

	if strings.TrimSpace(req.TemplateID) != "" {
		id, err := templates.ParseID(req.TemplateID)
		if err != nil {
			return nil, err
		}
		stored, err := m.templates.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		session := m.newSession(layout.Template{}, "")
		skipped, err = session.Deserialize(stored.Record())
		if err != nil {
			return nil, err
		}
		skipped = append(append([]layout.SkippedElement(nil), stored.Skipped...), skipped...)
		snap.TemplateID = id
		snap.SavedActive = stored.IsActive
		snap.Template = session.Template()
	} else {
		tmpl := layout.Template{
			Name:         strings.TrimSpace(req.Name),
			TemplateType: req.TemplateType,
			PageSize:     req.PageSize,
		}
		if tmpl.Name == "" {
			tmpl.Name = DefaultTemplateName
		}
		if tmpl.TemplateType == "" {
			tmpl.TemplateType = layout.TemplateReceipt
		}
		if tmpl.PageSize == "" {
			tmpl.PageSize = layout.DefaultPageSize
		}
		session := m.newSession(layout.Template{}, "")
		if err := session.SetTemplateType(tmpl.TemplateType); err != nil {
			return nil, err
		}
		if err := session.SetPageSize(tmpl.PageSize); err != nil {
			return nil, err
		}
		session.Rename(tmpl.Name)
		snap.Template = session.Template()
	}

	snap.UpdatedAt = m.now()
	if err := m.store.Save(ctx, snap); err != nil {
		return nil, err
	}
	m.logger.Info("editor session opened",
		slog.String("session_id", snap.ID),
		slog.Int64("template_id", snap.TemplateID),
	)

	view := m.view(snap)
	view.Skipped = skipped
	return view, nil
}

// Get returns the current state of a session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*View, error) {
	snap, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return m.view(snap), nil
}

// Read 以只读方式访问会话；fn 中的修改不会被保存。
func (m *Manager) Read(ctx context.Context, sessionID string, fn func(*layout.EditorSession) error) error {
	snap, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	return fn(m.newSession(snap.Template, snap.Selected))
}

// Apply 在会话锁内执行修改并写回快照。fn 返回错误时快照保持不变。
func (m *Manager) Apply(ctx context.Context, sessionID string, fn func(*layout.EditorSession) error) (*View, error) {
	unlock := m.lock(sessionID)
	defer unlock()

	snap, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session := m.newSession(snap.Template, snap.Selected)
	if err := fn(session); err != nil {
		return nil, err
	}

	snap.Template = session.Template()
	snap.Selected = session.SelectedID()
	snap.Revision++
	snap.UpdatedAt = m.now()
	if err := m.store.Save(ctx, snap); err != nil {
		return nil, err
	}
	return m.view(snap), nil
}

// Save 把会话中的模板写入持久化层：首次保存创建，之后更新。
// 同一会话的保存串行执行，连续点击不会重复创建模板，也不会让旧状态覆盖新状态。
// 保存不持有会话锁，期间的编辑保留在会话中，留待下一次保存。
// 只有持久化成功才记录模板 ID；保存期间会话被关闭则丢弃结果，不返回错误。
// 启用状态只在会话中被明确修改过时才写回，其余情况保留库中的值。
func (m *Manager) Save(ctx context.Context, sessionID string) (*SaveResult, error) {
	unlockSave := m.lock(saveLockKey(sessionID))
	defer unlockSave()

	snap, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec := m.newSession(snap.Template, "").Serialize()

	var saved *templates.Template
	switch {
	case snap.TemplateID == 0:
		saved, err = m.templates.Create(ctx, rec)
	case rec.IsActive != snap.SavedActive:
		saved, err = m.templates.Update(ctx, snap.TemplateID, rec)
	default:
		saved, err = m.templates.UpdateContent(ctx, snap.TemplateID, rec)
	}
	if err != nil {
		return nil, err
	}
	savedID, err := templates.ParseID(saved.ID)
	if err != nil {
		return nil, fmt.Errorf("saved template id: %w", err)
	}

	unlock := m.lock(sessionID)
	defer unlock()

	current, err := m.store.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		m.logger.Info("editor session closed during save, dropping result",
			slog.String("session_id", sessionID),
			slog.String("template_id", saved.ID),
		)
		return &SaveResult{Template: saved}, nil
	}
	if err != nil {
		return nil, err
	}

	current.TemplateID = savedID
	current.SavedRevision = snap.Revision
	current.SavedActive = saved.IsActive
	if current.Template.IsActive == rec.IsActive {
		current.Template.IsActive = saved.IsActive
	}
	current.UpdatedAt = m.now()
	if err := m.store.Save(ctx, current); err != nil {
		return nil, err
	}
	return &SaveResult{Template: saved, Session: m.view(current)}, nil
}

// Reload 丢弃未保存的修改，重新从持久化层加载模板；加载失败时会话保持原状。
func (m *Manager) Reload(ctx context.Context, sessionID string) (*View, error) {
	unlock := m.lock(sessionID)
	defer unlock()

	snap, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snap.TemplateID == 0 {
		return nil, ErrNotSaved
	}
	stored, err := m.templates.Get(ctx, snap.TemplateID)
	if err != nil {
		return nil, err
	}

	session := m.newSession(snap.Template, snap.Selected)
	skipped, err := session.Deserialize(stored.Record())
	if err != nil {
		return nil, err
	}
	snap.Template = session.Template()
	snap.Selected = session.SelectedID()
	snap.Revision++
	snap.SavedRevision = snap.Revision
	snap.SavedActive = stored.IsActive
	snap.UpdatedAt = m.now()
	if err := m.store.Save(ctx, snap); err != nil {
		return nil, err
	}

	view := m.view(snap)
	view.Skipped = append(append([]layout.SkippedElement(nil), stored.Skipped...), skipped...)
	return view, nil
}

// Close 结束会话；重复关闭不报错。
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	unlock := m.lock(sessionID)
	defer unlock()
	return m.store.Delete(ctx, sessionID)
}

func saveLockKey(sessionID string) string {
	return "save:" + sessionID
}

func (m *Manager) lock(key string) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

func (m *Manager) newSession(tmpl layout.Template, selected string) *layout.EditorSession {
	return layout.NewEditorSession(tmpl, layout.WithCatalog(m.catalog), layout.WithSelection(selected))
}

func (m *Manager) view(snap *Snapshot) *View {
	session := m.newSession(snap.Template, snap.Selected)
	view := &View{
		SessionID:  snap.ID,
		Template:   session.Serialize(),
		Page:       session.PageBounds(),
		SelectedID: session.SelectedID(),
		Revision:   snap.Revision,

		SavedRevision: snap.SavedRevision,
	}
	if snap.TemplateID != 0 {
		view.TemplateID = templates.FormatID(snap.TemplateID)
	}
	return view
}

package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func elementsOf(t *testing.T, view map[string]any) []map[string]any {
	t.Helper()
	tmpl := view["template"].(map[string]any)
	raw, _ := tmpl["elements"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, el := range raw {
		out = append(out, el.(map[string]any))
	}
	return out
}

func TestEditorSessionFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/v1/editor/sessions", map[string]any{
		"name":         "وصل إرسال",
		"templateType": "send_transfer",
		"pageSize":     "a5_landscape",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decodeBody(t, w)
	sid := view["sessionId"].(string)
	base := "/v1/editor/sessions/" + sid

	w = env.do(t, http.MethodPost, base+"/elements", map[string]any{"type": "text_field", "fieldKey": "sender_name"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view = decodeBody(t, w)
	els := elementsOf(t, view)
	require.Len(t, els, 1)
	eid := els[0]["id"].(string)
	assert.Equal(t, eid, view["selectedId"])

	w = env.do(t, http.MethodPatch, base+"/elements/"+eid, map[string]any{"x": 520, "y": 170})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, base+"/preview", map[string]any{"data": map[string]string{"sender_name": "Ahmed Ali"}})
	require.Equal(t, http.StatusOK, w.Code)
	boxes := decodeBody(t, w)["boxes"].([]any)
	require.Len(t, boxes, 1)
	box := boxes[0].(map[string]any)
	assert.Equal(t, "Ahmed Ali", box["content"])
	assert.Equal(t, 520.0, box["x"])
	assert.Equal(t, 170.0, box["y"])

	w = env.do(t, http.MethodPost, base+"/elements/"+eid+"/nudge", map[string]any{"dx": 1000, "dy": 1000})
	require.Equal(t, http.StatusOK, w.Code)
	el := elementsOf(t, decodeBody(t, w))[0]
	assert.Equal(t, 794.0-160.0, el["x"])
	assert.Equal(t, 559.0-25.0, el["y"])

	w = env.do(t, http.MethodPost, base+"/elements/"+eid+"/duplicate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = decodeBody(t, w)
	require.Len(t, elementsOf(t, view), 2)
	assert.NotEqual(t, eid, view["selectedId"])

	w = env.do(t, http.MethodPost, base+"/commands", map[string]any{"command": "delete"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, elementsOf(t, decodeBody(t, w)), 1)

	w = env.do(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := decodeBody(t, w)
	templateID := saved["savedTemplate"].(map[string]any)["id"].(string)
	assert.Equal(t, templateID, saved["session"].(map[string]any)["templateId"])

	w = env.do(t, http.MethodDelete, base+"/elements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, elementsOf(t, decodeBody(t, w)))

	w = env.do(t, http.MethodPost, base+"/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, elementsOf(t, decodeBody(t, w)), 1)

	w = env.do(t, http.MethodGet, "/v1/templates/"+templateID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, base, nil).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base, nil).Code)
}

func TestEditorElementErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodPost, "/v1/editor/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	base := "/v1/editor/sessions/" + decodeBody(t, w)["sessionId"].(string)

	w = env.do(t, http.MethodPost, base+"/elements", map[string]any{"type": "triangle"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", decodeBody(t, w)["code"])

	w = env.do(t, http.MethodPost, base+"/elements", map[string]any{"type": "rectangle"})
	require.Equal(t, http.StatusOK, w.Code)
	eid := elementsOf(t, decodeBody(t, w))[0]["id"].(string)

	w = env.do(t, http.MethodPatch, base+"/elements/"+eid, map[string]any{"colour": "#fff"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, base+"/elements/missing", map[string]any{"x": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, base+"/elements/missing", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, base+"/elements/"+eid+"/reorder", map[string]any{"direction": "forward"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, base+"/elements/"+eid+"/reorder", map[string]any{"direction": "up"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, base+"/reload", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPatch, base, map[string]any{"pageSize": "b9"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "pageSize", decodeBody(t, w)["field"])

	w = env.do(t, http.MethodPost, "/v1/editor/sessions", map[string]any{"templateId": "424242"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEditorAlignAndDistribute(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodPost, "/v1/editor/sessions", map[string]any{"pageSize": "a4_portrait"})
	require.Equal(t, http.StatusCreated, w.Code)
	base := "/v1/editor/sessions/" + decodeBody(t, w)["sessionId"].(string)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/elements", map[string]any{"type": "text_field"}).Code)
	}

	w = env.do(t, http.MethodPost, base+"/distribute", map[string]any{"axis": "vertical", "start": 50, "gap": 20})
	require.Equal(t, http.StatusOK, w.Code)
	els := elementsOf(t, decodeBody(t, w))
	require.Len(t, els, 3)
	assert.Equal(t, 50.0, els[0]["y"])
	assert.Equal(t, 95.0, els[1]["y"])
	assert.Equal(t, 140.0, els[2]["y"])

	w = env.do(t, http.MethodPost, base+"/align-top", nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, el := range elementsOf(t, decodeBody(t, w)) {
		assert.Equal(t, 50.0, el["y"])
	}

	w = env.do(t, http.MethodPost, base+"/distribute", map[string]any{"axis": "diagonal"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

package layout

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("el-%d", n)
	}
}

func newTestSession(t *testing.T, page PageSize) *EditorSession {
	t.Helper()
	return NewEditorSession(Template{
		Name:         "إيصال إرسال",
		TemplateType: TemplateSendTransfer,
		PageSize:     page,
	}, WithIDGenerator(seqIDs()))
}

func paintOrder(s *EditorSession) []string {
	ids := make([]string, 0)
	for _, el := range s.Elements() {
		ids = append(ids, el.ID)
	}
	return ids
}

func previewOrder(s *EditorSession) []string {
	ids := make([]string, 0)
	for _, box := range s.RenderPreview(nil) {
		ids = append(ids, box.ElementID)
	}
	return ids
}

func TestAddElementAppliesKindDefaults(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)

	field := s.AddElement(KindTextField, "sender_name")
	assert.Equal(t, "el-1", field.ID)
	assert.Equal(t, DefaultX, field.X)
	assert.Equal(t, DefaultY, field.Y)
	assert.Equal(t, 160.0, field.Width)
	assert.Equal(t, 25.0, field.Height)
	assert.Equal(t, "sender_name", field.FieldKey)
	require.NotNil(t, field.Text)
	assert.Equal(t, DefaultFontFamily, field.Text.FontFamily)
	assert.Equal(t, AlignStart, field.Text.TextAlign)
	assert.Nil(t, field.Shape)
	assert.Equal(t, "el-1", s.SelectedID())

	rect := s.AddElement(KindRectangle, "ignored")
	assert.Empty(t, rect.FieldKey)
	require.NotNil(t, rect.Shape)
	assert.Equal(t, Transparent, rect.Shape.BackgroundColor)
	assert.Equal(t, BorderSolid, rect.Shape.BorderStyle)
	assert.Nil(t, rect.Text)
	assert.Equal(t, "el-2", s.SelectedID())

	unbound := s.AddElement(KindTextField, "")
	assert.Equal(t, "tracking_number", unbound.FieldKey)

	static := s.AddElement(KindStaticText, "")
	assert.Equal(t, DefaultStaticText, static.Content)

	vline := s.AddElement(KindVerticalLine, "")
	assert.Less(t, vline.Width, vline.Height)
}

func TestPaintOrderFollowsSequence(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	a := s.AddElement(KindRectangle, "")
	b := s.AddElement(KindCircle, "")
	c := s.AddElement(KindTextField, "amount")

	assert.Equal(t, []string{a.ID, b.ID, c.ID}, previewOrder(s))

	require.True(t, s.Reorder(a.ID, Forward))
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, paintOrder(s))

	// 已在最上层：空操作
	assert.False(t, s.Reorder(c.ID, Forward))
	// 已在最底层：空操作
	assert.False(t, s.Reorder(b.ID, Backward))

	dup, ok := s.DuplicateElement(b.ID)
	require.True(t, ok)
	assert.Equal(t, []string{b.ID, a.ID, c.ID, dup.ID}, paintOrder(s))
	assert.Equal(t, paintOrder(s), previewOrder(s))

	for i, box := range s.RenderPreview(nil) {
		assert.Equal(t, i, box.ZIndex)
	}
}

func TestDuplicateRectangle(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	rect := s.AddElement(KindRectangle, "")

	dup, ok := s.DuplicateElement(rect.ID)
	require.True(t, ok)

	els := s.Elements()
	require.Len(t, els, 2)
	assert.NotEqual(t, els[0].ID, els[1].ID)
	assert.Equal(t, els[0].X+20, els[1].X)
	assert.Equal(t, els[0].Y+20, els[1].Y)
	assert.Equal(t, els[0].Width, els[1].Width)
	assert.Equal(t, els[0].Height, els[1].Height)
	assert.Equal(t, *els[0].Shape, *els[1].Shape)
	assert.Equal(t, dup.ID, s.SelectedID())

	// 副本的样式不与原元素共享
	bg := "#ff0000"
	s.UpdateElement(dup.ID, ElementPatch{BackgroundColor: &bg})
	orig, _ := s.Element(rect.ID)
	assert.Equal(t, Transparent, orig.Shape.BackgroundColor)

	_, ok = s.DuplicateElement("missing")
	assert.False(t, ok)
}

func TestUpdateElementKeepsMinimumSize(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	el := s.AddElement(KindCircle, "")

	sizes := []float64{0, -5, 0.25, 42, -1000}
	for _, w := range sizes {
		for _, h := range sizes {
			w, h := w, h
			require.True(t, s.UpdateElement(el.ID, ElementPatch{Width: &w, Height: &h}))
			got, _ := s.Element(el.ID)
			assert.GreaterOrEqual(t, got.Width, MinSize)
			assert.GreaterOrEqual(t, got.Height, MinSize)
		}
	}
}

func TestUpdateElementMergesShallowly(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	el := s.AddElement(KindTextField, "amount")

	x, y := -30.0, 5000.0
	size := 22.0
	weight := FontWeight("700")
	key := "currency"
	require.True(t, s.UpdateElement(el.ID, ElementPatch{X: &x, Y: &y, FontSize: &size, FontWeight: &weight, FieldKey: &key}))

	got, _ := s.Element(el.ID)
	assert.Equal(t, -30.0, got.X, "x is not clamped on update")
	assert.Equal(t, 5000.0, got.Y)
	assert.Equal(t, 22.0, got.Text.FontSizePt)
	assert.Equal(t, FontWeight("700"), got.Text.FontWeight)
	assert.Equal(t, "currency", got.FieldKey)
	assert.Equal(t, el.Width, got.Width)
	assert.Equal(t, DefaultColor, got.Text.Color)

	// 不适用于该类型的字段被忽略
	bg := "#eeeeee"
	require.True(t, s.UpdateElement(el.ID, ElementPatch{BackgroundColor: &bg}))
	got, _ = s.Element(el.ID)
	assert.Nil(t, got.Shape)

	assert.False(t, s.UpdateElement("missing", ElementPatch{X: &x}))
}

func TestNudgeClampsIntoPage(t *testing.T) {
	deltas := []float64{-1000, -10, -1, 0, 1, 10, 1000}
	starts := [][2]float64{{0, 0}, {50, 50}, {700, 500}, {-40, 900}}
	pages := []Dimensions{{794, 559}, {302, 600}, {100, 20}}

	for _, page := range pages {
		for _, start := range starts {
			for _, dx := range deltas {
				for _, dy := range deltas {
					s := newTestSession(t, PageA4Portrait)
					el := s.AddElement(KindRectangle, "")
					x, y := start[0], start[1]
					s.UpdateElement(el.ID, ElementPatch{X: &x, Y: &y})

					require.True(t, s.Nudge(el.ID, dx, dy, page.Width, page.Height))
					got, _ := s.Element(el.ID)
					assert.GreaterOrEqual(t, got.X, 0.0)
					assert.GreaterOrEqual(t, got.Y, 0.0)
					assert.LessOrEqual(t, got.X, maxFloat(page.Width-got.Width, 0))
					assert.LessOrEqual(t, got.Y, maxFloat(page.Height-got.Height, 0))
				}
			}
		}
	}
}

func TestDeleteElementIsIdempotent(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	a := s.AddElement(KindLine, "")
	b := s.AddElement(KindImage, "")

	require.True(t, s.DeleteElement(b.ID))
	assert.Empty(t, s.SelectedID(), "deleting the selected element clears selection")
	after := s.Serialize()

	assert.False(t, s.DeleteElement(b.ID))
	assert.Equal(t, after, s.Serialize())
	assert.Equal(t, []string{a.ID}, paintOrder(s))
}

func TestAlignAndDistribute(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	for i := 0; i < 9; i++ {
		s.AddElement(KindTextField, "amount")
	}

	s.DistributeVertically(50, 20)
	for i, el := range s.Elements() {
		assert.Equal(t, 50+float64(i)*45, el.Y)
	}

	s.AlignAllToTop()
	for _, el := range s.Elements() {
		assert.Equal(t, 50.0, el.Y)
	}

	s.DistributeHorizontally(10, 5)
	for i, el := range s.Elements() {
		assert.Equal(t, 10+float64(i)*165, el.X)
	}

	s.ClearAll()
	assert.Empty(t, s.Elements())
	assert.Empty(t, s.SelectedID())
	s.AlignAllToTop()
}

func TestPreviewFallsBackToPlaceholder(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	s.AddElement(KindTextField, "amount")
	s.AddElement(KindTextField, "not_in_dictionary")

	boxes := s.RenderPreview(map[string]string{})
	require.Len(t, boxes, 2)
	assert.Equal(t, "{{amount}}", boxes[0].Content)
	assert.Equal(t, "{{not_in_dictionary}}", boxes[1].Content)
	assert.Equal(t, DirectionRTL, boxes[0].Direction)
}

func TestPreviewScenarioSenderName(t *testing.T) {
	raw := []byte(`{
		"name": "وصل إرسال",
		"templateType": "send_transfer",
		"pageSize": "a5_landscape",
		"elements": [
			{"id": "f1", "type": "text_field", "fieldKey": "sender_name", "x": 520, "y": 170, "width": 160, "height": 25}
		]
	}`)
	rec, err := DecodeRecord(raw)
	require.NoError(t, err)

	s := NewEditorSession(Template{}, WithIDGenerator(seqIDs()))
	skipped, err := s.Deserialize(rec)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, Dimensions{Width: 794, Height: 559}, s.PageBounds())

	boxes := s.RenderPreview(map[string]string{"sender_name": "Ahmed Ali"})
	require.Len(t, boxes, 1)
	box := boxes[0]
	assert.Equal(t, 520.0, box.X)
	assert.Equal(t, 170.0, box.Y)
	assert.Equal(t, 160.0, box.Width)
	assert.Equal(t, 25.0, box.Height)
	assert.Equal(t, "Ahmed Ali", box.Content)
}

func TestPreviewContentPerKind(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	static := s.AddElement(KindStaticText, "")
	img := s.AddElement(KindImage, "")
	url := "https://cdn.example.com/logo.png"
	s.UpdateElement(img.ID, ElementPatch{ImageURL: &url})
	s.AddElement(KindLine, "")

	boxes := s.RenderPreview(map[string]string{"amount": "100"})
	require.Len(t, boxes, 3)
	assert.Equal(t, static.Content, boxes[0].Content)
	assert.Empty(t, boxes[1].Content)
	assert.Equal(t, url, boxes[1].ImageURL)
	assert.Empty(t, boxes[2].Content)
	assert.Equal(t, DefaultColor, boxes[2].BackgroundColor)
	assert.Zero(t, boxes[2].BorderWidth)
}

func TestSerializeRoundTrip(t *testing.T) {
	s := newTestSession(t, PageA5Landscape)
	field := s.AddElement(KindTextField, "receiver_name")
	s.AddElement(KindStaticText, "")
	rect := s.AddElement(KindRectangle, "")
	s.AddElement(KindCircle, "")
	s.AddElement(KindLine, "")
	s.AddElement(KindVerticalLine, "")
	img := s.AddElement(KindImage, "")

	rot, op, spacing := 45.0, 0.0, 1.5
	weight, align := WeightBold, AlignCenter
	s.UpdateElement(field.ID, ElementPatch{Rotation: &rot, FontWeight: &weight, TextAlign: &align, LetterSpacing: &spacing})
	dashed, bw := BorderDashed, 3.0
	s.UpdateElement(rect.ID, ElementPatch{Opacity: &op, BorderStyle: &dashed, BorderWidth: &bw})
	url := "https://cdn.example.com/stamp.png"
	s.UpdateElement(img.ID, ElementPatch{ImageURL: &url})
	s.SetActive(true)

	original := s.Serialize()
	data, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)

	restored := NewEditorSession(Template{}, WithIDGenerator(seqIDs()))
	_, err = restored.Deserialize(decoded)
	require.NoError(t, err)
	assert.Equal(t, original, restored.Serialize())
	assert.Equal(t, s.Template(), restored.Template())
}

func TestDeserializeFillsDefaultsAndSkipsUnknownKinds(t *testing.T) {
	raw := []byte(`{
		"name": "قديم",
		"templateType": "receipt",
		"elements": [
			{"id": "a", "type": "text_field", "fieldKey": "amount", "x": 10, "y": 20, "textAlign": "right", "fontWeight": 600},
			{"id": "b", "type": "barcode", "x": 1, "y": 1},
			{"type": "rectangle", "x": 5, "y": 5, "width": 0},
			{"id": "a", "type": "static_text", "text": "شكرا"}
		]
	}`)
	rec, err := DecodeRecord(raw)
	require.NoError(t, err)
	require.Len(t, rec.Skipped(), 1)
	assert.Equal(t, "b", rec.Skipped()[0].ID)
	assert.Equal(t, 1, rec.Skipped()[0].Index)

	s := NewEditorSession(Template{}, WithIDGenerator(seqIDs()))
	skipped, err := s.Deserialize(rec)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, Kind("barcode"), skipped[0].Kind)

	els := s.Elements()
	require.Len(t, els, 3)
	assert.Equal(t, PageA4Portrait, s.Template().PageSize)

	assert.Equal(t, AlignStart, els[0].Text.TextAlign, "legacy right maps to start")
	assert.Equal(t, FontWeight("600"), els[0].Text.FontWeight)
	assert.Equal(t, DefaultFontSizePt, els[0].Text.FontSizePt)
	assert.Equal(t, 160.0, els[0].Width)
	assert.Equal(t, 1.0, els[0].Opacity)

	assert.NotEmpty(t, els[1].ID)
	assert.Equal(t, MinSize, els[1].Width)
	assert.Equal(t, DefaultBorderWidth, els[1].Shape.BorderWidth)

	assert.NotEqual(t, "a", els[2].ID, "duplicate ids are regenerated")
	assert.Equal(t, "شكرا", els[2].Content)
}

func TestDecodeRecordDefaultsInvalidStyles(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{
		"name": "x",
		"templateType": "receipt",
		"elements": [
			{"id": "a", "type": "text_field", "fieldKey": "amount", "textAlign": "", "fontWeight": ""},
			{"id": "b", "type": "rectangle", "borderStyle": "none"},
			{"id": "c", "type": "static_text", "textAlign": "justify", "fontWeight": 650},
			{"id": "d", "type": "circle", "borderStyle": "Dashed"},
			{"id": "e", "type": "static_text", "fontWeight": true}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, rec.Elements, 5)
	assert.Empty(t, rec.Skipped())

	def := DefaultTextStyle()
	assert.Equal(t, def.TextAlign, rec.Elements[0].Text.TextAlign)
	assert.Equal(t, def.FontWeight, rec.Elements[0].Text.FontWeight)
	assert.Equal(t, BorderSolid, rec.Elements[1].Shape.BorderStyle)
	assert.Equal(t, def.TextAlign, rec.Elements[2].Text.TextAlign)
	assert.Equal(t, def.FontWeight, rec.Elements[2].Text.FontWeight)
	assert.Equal(t, BorderDashed, rec.Elements[3].Shape.BorderStyle)
	assert.Equal(t, def.FontWeight, rec.Elements[4].Text.FontWeight)

	// 回写后的 JSON 里只出现合法值
	out, err := json.Marshal(rec.Elements[2])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"fontWeight":"normal"`)
	assert.Contains(t, string(out), `"textAlign":"start"`)
}

func TestDeserializeMissingElementsIsEmpty(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"name":"x","templateType":"receipt","pageSize":"thermal_80mm"}`))
	require.NoError(t, err)

	s := newTestSession(t, PageA4Portrait)
	s.AddElement(KindCircle, "")
	_, err = s.Deserialize(rec)
	require.NoError(t, err)
	assert.Empty(t, s.Elements())
	assert.Equal(t, PageThermal80mm, s.Template().PageSize)
}

func TestDeserializeRejectsUnknownPageSizeWithoutPartialMerge(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	s.AddElement(KindCircle, "")
	before := s.Serialize()

	_, err := s.Deserialize(TemplateRecord{Name: "bad", TemplateType: TemplateReceipt, PageSize: "letter"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "pageSize", verr.Field)
	assert.Equal(t, before, s.Serialize())

	_, err = s.Deserialize(TemplateRecord{Name: "bad", TemplateType: "invoice"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, before, s.Serialize())
}

func TestDecodeRecordRejectsMalformedElements(t *testing.T) {
	_, err := DecodeRecord([]byte(`{"name":"x","elements":[{"id":"a","type":"circle","x":"left"}]}`))
	require.Error(t, err)

	var patch ElementPatch
	err = json.Unmarshal([]byte(`{"borderStyle":"groove"}`), &patch)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr, "patches stay strict")
	assert.Equal(t, "borderStyle", verr.Field)
}

func TestValidateTemplate(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	s.AddElement(KindTextField, "unknown_key")
	require.NoError(t, s.Template().Validate(nil), "unknown field keys are tolerated")

	s.Rename("  ")
	var verr *ValidationError
	require.ErrorAs(t, s.Template().Validate(nil), &verr)
	assert.Equal(t, "name", verr.Field)

	tmpl := Template{Name: "x", TemplateType: TemplateReceipt, PageSize: PageA4Portrait, Elements: []Element{{ID: "a", Kind: "blob", Width: 5, Height: 5}}}
	require.ErrorAs(t, tmpl.Validate(nil), &verr)
}

func TestMissingFieldsDeduplicates(t *testing.T) {
	s := newTestSession(t, PageA5Landscape)
	s.AddElement(KindTextField, "receiver_name")
	s.AddElement(KindStaticText, "")
	s.AddElement(KindTextField, "amount")
	s.AddElement(KindTextField, "receiver_name")

	missing := MissingFields(s.Elements(), map[string]string{"amount": "100"})
	assert.Equal(t, []string{"receiver_name"}, missing)
	assert.Empty(t, MissingFields(s.Elements(), map[string]string{"amount": "1", "receiver_name": "x"}))
}

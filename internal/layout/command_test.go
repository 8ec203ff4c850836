package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchWithoutSelection(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	s.AddElement(KindCircle, "")
	s.Select("")

	for _, cmd := range []Command{CommandMoveUp, CommandDelete, CommandDuplicate} {
		assert.False(t, s.Dispatch(cmd, false))
	}
	assert.Len(t, s.Elements(), 1)
}

func TestDispatchMovesSelected(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	el := s.AddElement(KindCircle, "")

	require.True(t, s.Dispatch(CommandMoveRight, false))
	require.True(t, s.Dispatch(CommandMoveDown, true))
	got, _ := s.Element(el.ID)
	assert.Equal(t, DefaultX+NudgeStep, got.X)
	assert.Equal(t, DefaultY+FineNudgeStep, got.Y)

	for i := 0; i < 20; i++ {
		s.Dispatch(CommandMoveUp, false)
		s.Dispatch(CommandMoveLeft, false)
	}
	got, _ = s.Element(el.ID)
	assert.Equal(t, 0.0, got.X)
	assert.Equal(t, 0.0, got.Y)
}

func TestDispatchDuplicateAndDelete(t *testing.T) {
	s := newTestSession(t, PageA4Portrait)
	el := s.AddElement(KindRectangle, "")

	require.True(t, s.Dispatch(CommandDuplicate, false))
	require.Len(t, s.Elements(), 2)
	dupID := s.SelectedID()
	assert.NotEqual(t, el.ID, dupID)

	require.True(t, s.Dispatch(CommandDelete, false))
	assert.Empty(t, s.SelectedID())
	assert.Equal(t, []string{el.ID}, paintOrder(s))
	assert.False(t, s.Dispatch(CommandDelete, false))
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand(" Move_Left ")
	require.NoError(t, err)
	assert.Equal(t, CommandMoveLeft, cmd)

	_, err = ParseCommand("undo")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "command", verr.Field)
}

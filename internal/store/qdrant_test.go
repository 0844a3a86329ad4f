package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
)

func TestBuildFilterEmpty(t *testing.T) {
	assert.Nil(t, buildFilter(objstore.Filter{}))
}

func TestBuildFilterSingleKind(t *testing.T) {
	f := buildFilter(objstore.Filter{Kinds: []model.Kind{model.KindSymbol}, ProjectID: "p1"})
	require.NotNil(t, f)
	assert.Len(t, f.Must, 2)
}

func TestBuildFilterMultipleKindsUseShould(t *testing.T) {
	f := buildFilter(objstore.Filter{Kinds: []model.Kind{model.KindSymbol, model.KindFileChunk}})
	require.NotNil(t, f)
	require.Len(t, f.Must, 1)
	nested := f.Must[0].GetFilter()
	require.NotNil(t, nested)
	assert.Len(t, nested.Should, 2)
}

func TestRecordFromPayloadRoundTrip(t *testing.T) {
	sym := &model.Symbol{
		Envelope: model.Envelope{ID: "sym-1", Kind: model.KindSymbol, ProjectID: "p1"},
		Name:     "authenticate_user",
		Path:     "src/auth.py",
	}
	// The payload column round-trips through the shared decoder.
	raw, err := json.Marshal(sym)
	require.NoError(t, err)
	rec, err := objstore.DecodeRecord(model.KindSymbol, raw)
	require.NoError(t, err)
	got := rec.(*model.Symbol)
	assert.Equal(t, "authenticate_user", got.Name)
	assert.Equal(t, "src/auth.py", pathOf(got))
}

package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~gioverse/dynlist/provider"
	"git.sr.ht/~gioverse/dynlist/wire"
)

func TestDecodeIndexConstructFromMap(t *testing.T) {
	out, err := wire.DecodeIndexConstruct(map[string]interface{}{
		"listId":     "list1",
		"startIndex": 5,
		"items":      []interface{}{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "list1", out.ListID)
	require.NotNil(t, out.StartIndex)
	assert.EqualValues(t, 5, *out.StartIndex)
	assert.Nil(t, out.MinimumInclusiveIndex)
}

func TestDecodeIndexConstructFromJSONString(t *testing.T) {
	out, err := wire.DecodeIndexConstruct(`{"listId":"list1","startIndex":0}`)
	require.NoError(t, err)
	assert.Equal(t, "list1", out.ListID)
}

func TestDecodeIndexConstructMissingStartIndexLeavesNilPointer(t *testing.T) {
	out, err := wire.DecodeIndexConstruct(map[string]interface{}{"listId": "list1"})
	require.NoError(t, err)
	assert.Nil(t, out.StartIndex, "absent startIndex must be distinguishable from an explicit zero")
}

func TestToMapRejectsNonObjectPayload(t *testing.T) {
	_, err := wire.ToMap(42)
	require.Error(t, err)
	perr, ok := err.(*provider.Error)
	require.True(t, ok)
	assert.Equal(t, provider.InternalError, perr.Kind)
}

func TestToMapRejectsMalformedJSON(t *testing.T) {
	_, err := wire.ToMap([]byte(`{not valid`))
	require.Error(t, err)
}

func TestToMapRejectsJSONArray(t *testing.T) {
	_, err := wire.ToMap([]byte(`[1,2,3]`))
	require.Error(t, err)
}

func TestDecodeCrudBatchDetectsMissingListVersion(t *testing.T) {
	out, err := wire.DecodeCrudBatch(map[string]interface{}{
		"listId": "list1",
		"operations": []interface{}{
			map[string]interface{}{"type": "SetItem", "index": 0, "item": "x"},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, out.ListVersion)
	require.Len(t, out.Operations, 1)
	assert.Equal(t, "SetItem", out.Operations[0].Type)
}

func TestDecodeCrudBatchWithListVersion(t *testing.T) {
	out, err := wire.DecodeCrudBatch(map[string]interface{}{
		"listId":      "list1",
		"listVersion": 3,
		"operations":  []interface{}{},
	})
	require.NoError(t, err)
	require.NotNil(t, out.ListVersion)
	assert.EqualValues(t, 3, *out.ListVersion)
}

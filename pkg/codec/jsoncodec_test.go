package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	b, err := JSON.Marshal(map[string]string{"html": "<b>&</b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<b>&</b>"}`, string(b))
}

func TestStrictRejectsUnknownFields(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	assert.NoError(t, JSON.Unmarshal([]byte(`{"a":1,"b":2}`), &v))
	assert.Equal(t, 1, v.A)
	assert.Error(t, JSONStrict.Unmarshal([]byte(`{"a":1,"b":2}`), &v))
}

func TestUnmarshalRejectsTrailingContent(t *testing.T) {
	var v map[string]any
	err := JSON.Unmarshal([]byte(`{"a":1} {"b":2}`), &v)
	assert.ErrorIs(t, err, ErrTrailingContent)
	assert.NoError(t, JSON.Unmarshal([]byte("{\"a\":1}\n"), &v))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json; charset=utf-8", JSON.ContentType())
	assert.Equal(t, JSON.ContentType(), JSONStrict.ContentType())
}

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string           `cbor:"1,keyasint"`
	Sizes map[string]int64 `cbor:"2,keyasint"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	v := sample{Name: "ui.bundle", Sizes: map[string]int64{"b": 2, "a": 1, "c": 3}}

	first, err := Marshal(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	var decoded sample
	require.NoError(t, Unmarshal(first, &decoded))
	assert.Equal(t, v, decoded)
}

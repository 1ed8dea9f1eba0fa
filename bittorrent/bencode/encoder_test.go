package bencode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	var table = []struct {
		in       interface{}
		expected string
	}{
		{42, "i42e"},
		{uint64(42), "i42e"},
		{"spam", "4:spam"},
		{[]byte("spam"), "4:spam"},
		{List{"spam", "eggs"}, "l4:spam4:eggse"},
		{Dict{"cow": "moo", "spam": "eggs"}, "d3:cow3:moo4:spam4:eggse"},
		{Dict{"spam": List{"a", "b"}}, "d4:spaml1:a1:bee"},
	}

	for _, tt := range table {
		got, err := Marshal(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, string(got))
	}
}

func TestMarshalUnsupported(t *testing.T) {
	_, err := Marshal(struct{}{})
	assert.Error(t, err)
}

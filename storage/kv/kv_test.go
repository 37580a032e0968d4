package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixRange(t *testing.T) {
	r := PrefixRange([]byte{'C'})
	assert.Equal(t, []byte{'C'}, r.Start)
	assert.Equal(t, []byte{'D'}, r.Limit)

	r = PrefixRange([]byte{'C', 0xff})
	assert.Equal(t, []byte{'D'}, r.Limit)

	r = PrefixRange([]byte{0xff, 0xff})
	assert.Nil(t, r.Limit)
}

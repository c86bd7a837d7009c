package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseResource(t *testing.T) {
	for _, r := range DefaultResources {
		got, ok := ParseResource(r.String())
		assert.True(t, ok)
		assert.Equal(t, r, got)
	}

	_, ok := ParseResource("fulfillments")
	assert.False(t, ok)
}

func TestPageRequest_CopiesAreIndependent(t *testing.T) {
	base := PageRequest{Limit: 250, UpdatedAtMin: time.Unix(0, 0).UTC(), Order: "updated_at asc"}

	next := base.WithSinceID(42)
	assert.Equal(t, int64(42), next.SinceID)
	assert.Zero(t, base.SinceID)

	linked := base.WithPageInfo("abc")
	assert.Equal(t, "abc", linked.PageInfo)
	assert.Empty(t, base.PageInfo)
}

func TestRow_Columns(t *testing.T) {
	row := Row{"b": 1, "a": nil, "c": "x"}
	assert.Equal(t, []string{"a", "b", "c"}, row.Columns())
	assert.True(t, row.SameColumns([]string{"c", "a", "b"}))
	assert.False(t, row.SameColumns([]string{"a", "b"}))
	assert.False(t, row.SameColumns([]string{"a", "b", "d"}))
}

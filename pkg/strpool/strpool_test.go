package strpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntern(t *testing.T) {
	t.Run("idempotent_by_content", func(t *testing.T) {
		p := New()
		id1 := p.Intern("hello")
		id2 := p.Intern("hello")
		assert.Equal(t, id1, id2)
	})

	t.Run("distinct_strings_get_distinct_ids", func(t *testing.T) {
		p := New()
		id1 := p.Intern("hello")
		id2 := p.Intern("world")
		assert.NotEqual(t, id1, id2)
	})

	t.Run("never_assigns_reserved_sentinels", func(t *testing.T) {
		p := New()
		for i := 0; i < 10; i++ {
			id := p.Intern(string(rune('a' + i)))
			assert.NotEqual(t, Any, id)
			assert.NotEqual(t, Invalid, id)
		}
	})
}

func TestLookup(t *testing.T) {
	p := New()
	id := p.Intern("hello")

	t.Run("round_trips", func(t *testing.T) {
		s, ok := p.Lookup(id)
		require.True(t, ok)
		assert.Equal(t, "hello", s)
	})

	t.Run("unknown_id_is_absent", func(t *testing.T) {
		_, ok := p.Lookup(ID(999999))
		assert.False(t, ok)
	})
}

func TestFindRegex(t *testing.T) {
	p := New()
	for _, s := range []string{"hello", "help", "world"} {
		p.Intern(s)
	}

	t.Run("prefix_pattern_matches_subset", func(t *testing.T) {
		ids := p.FindRegex("he.*")
		assert.Len(t, ids, 2)
		for id := range ids {
			s, _ := p.Lookup(id)
			assert.Contains(t, []string{"hello", "help"}, s)
		}
	})

	t.Run("invalid_pattern_returns_empty_not_error", func(t *testing.T) {
		ids := p.FindRegex("(unterminated")
		assert.Empty(t, ids)
	})

	t.Run("no_literal_prefix_still_matches_by_full_scan", func(t *testing.T) {
		ids := p.FindRegex(".*orl.*")
		require.Len(t, ids, 1)
		for id := range ids {
			s, _ := p.Lookup(id)
			assert.Equal(t, "world", s)
		}
	})

	t.Run("exact_match", func(t *testing.T) {
		ids := p.FindRegex("hello")
		require.Len(t, ids, 1)
	})
}

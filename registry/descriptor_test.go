package registry

import (
	"encoding/json"
	"testing"
)

func TestDescriptorCachePutGetRoundTrips(t *testing.T) {
	c := NewDescriptorCache()
	c.Put("echo", "Echoes input", json.RawMessage(`{"type":"object"}`))

	d, ok := c.Get("echo")
	if !ok {
		t.Fatal("expected echo to be cached")
	}
	if d.Name != "echo" || d.Description != "Echoes input" {
		t.Fatalf("unexpected descriptor %+v", d)
	}
	if d.TokenCount <= 0 {
		t.Fatalf("expected a positive token count, got %d", d.TokenCount)
	}
}

func TestDescriptorCacheGetMissingReturnsFalse(t *testing.T) {
	c := NewDescriptorCache()
	if _, ok := c.Get("nope"); ok {
		t.Fatal("expected ok=false for an uncached name")
	}
}

func TestDescriptorCachePutReplacesExisting(t *testing.T) {
	c := NewDescriptorCache()
	c.Put("tool", "short", nil)
	first, _ := c.Get("tool")

	c.Put("tool", "a considerably longer description than before", nil)
	second, _ := c.Get("tool")

	if second.Description == first.Description {
		t.Fatal("expected the second Put to replace the descriptor")
	}
	if len(c.List()) != 1 {
		t.Fatalf("expected exactly one cached descriptor after replace, got %d", len(c.List()))
	}
}

func TestDescriptorCacheListReturnsAllEntries(t *testing.T) {
	c := NewDescriptorCache()
	c.Put("a", "first", nil)
	c.Put("b", "second", nil)

	list := c.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(list))
	}
	names := map[string]bool{}
	for _, d := range list {
		names[d.Name] = true
	}
	if !names["a"] || !names["b"] {
		t.Fatalf("expected both a and b in the list, got %+v", list)
	}
}

func TestDescriptorCacheTotalTokensSumsEntries(t *testing.T) {
	c := NewDescriptorCache()
	c.Put("a", "first tool", nil)
	c.Put("b", "second tool", nil)

	a, _ := c.Get("a")
	b, _ := c.Get("b")
	if got, want := c.TotalTokens(), a.TokenCount+b.TokenCount; got != want {
		t.Fatalf("TotalTokens() = %d, want %d", got, want)
	}
}

func TestCountToolTokensGrowsWithLongerInput(t *testing.T) {
	short := CountToolTokens("t", "a tool", nil)
	long := CountToolTokens("t", "a tool with a much longer and more detailed description of behavior", nil)
	if long <= short {
		t.Fatalf("expected a longer description to cost more tokens: short=%d long=%d", short, long)
	}
}

func TestCountToolTokensIncludesInputSchema(t *testing.T) {
	without := CountToolTokens("t", "desc", nil)
	with := CountToolTokens("t", "desc", json.RawMessage(`{"type":"object","properties":{"x":{"type":"string"}}}`))
	if with <= without {
		t.Fatalf("expected a non-empty input schema to add to the token count: without=%d with=%d", without, with)
	}
}

func TestCountToolTokensEmptyInputsAreZero(t *testing.T) {
	if got := CountToolTokens("", "", nil); got != 0 {
		t.Fatalf("expected 0 tokens for all-empty input, got %d", got)
	}
}

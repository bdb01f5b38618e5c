package registry

import (
	"encoding/json"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// ToolDescriptor describes one tool, cached with a precomputed approximate
// token cost (§2A/A8), grounded on the donor's CachedTool/ToolCache.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	TokenCount  int             `json:"-"`
}

// DescriptorCache holds ToolDescriptors keyed by name, with each entry's
// token cost computed once at insertion.
type DescriptorCache struct {
	mu    sync.RWMutex
	tools map[string]ToolDescriptor
}

// NewDescriptorCache constructs an empty cache.
func NewDescriptorCache() *DescriptorCache {
	return &DescriptorCache{tools: make(map[string]ToolDescriptor)}
}

// Put stores/replaces a descriptor, computing its token count.
func (c *DescriptorCache) Put(name, description string, inputSchema json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[name] = ToolDescriptor{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
		TokenCount:  CountToolTokens(name, description, inputSchema),
	}
}

// Get returns the descriptor for name, if cached.
func (c *DescriptorCache) Get(name string) (ToolDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.tools[name]
	return d, ok
}

// List returns every cached descriptor.
func (c *DescriptorCache) List() []ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(c.tools))
	for _, d := range c.tools {
		out = append(out, d)
	}
	return out
}

// TotalTokens sums the TokenCount of every cached descriptor, giving the
// approximate cost of a full tools/list response.
func (c *DescriptorCache) TotalTokens() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, d := range c.tools {
		total += d.TokenCount
	}
	return total
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

func cl100kCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() { codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase) })
	return codec, codecErr
}

// CountToolTokens approximates a tool descriptor's token cost using the
// cl100k_base encoding, falling back to a length/4 heuristic if the
// tokenizer is unavailable — identical fallback shape to the donor's
// CountAggregatedToolTokens.
func CountToolTokens(name, description string, inputSchema json.RawMessage) int {
	codec, err := cl100kCodec()
	if err != nil {
		return estimateFallback(name, description, inputSchema)
	}

	total := 0
	total += countOrZero(codec, name)
	total += countOrZero(codec, description)
	if len(inputSchema) > 0 {
		total += countOrZero(codec, string(inputSchema))
	}
	return total
}

func countOrZero(codec tokenizer.Codec, text string) int {
	if text == "" {
		return 0
	}
	tokens, _, err := codec.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(tokens)
}

func estimateFallback(name, desc string, schema json.RawMessage) int {
	total := len(name) + len(desc)
	if len(schema) > 0 {
		total += len(schema)
	}
	return total / 4
}

package swidget

import (
	"strings"
	"sync"
)

// DeviceConfiguration holds the device's configuration blob: an arbitrary
// nested key/value tree retrieved lazily from /api/v1/device_config.
//
// Thread Safety: all methods are safe for concurrent use.
type DeviceConfiguration struct {
	mu   sync.RWMutex
	tree map[string]any
}

// NewDeviceConfiguration wraps an existing configuration tree. A nil tree
// yields an unpopulated configuration.
func NewDeviceConfiguration(tree map[string]any) *DeviceConfiguration {
	return &DeviceConfiguration{tree: tree}
}

// Populated reports whether configuration has been retrieved from the device.
func (c *DeviceConfiguration) Populated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tree) > 0
}

// Tree returns a shallow copy of the top level of the configuration tree.
func (c *DeviceConfiguration) Tree() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.tree))
	for k, v := range c.tree {
		out[k] = v
	}
	return out
}

// Get resolves a dotted path ("wifi.sta.ssid") against the tree.
// The boolean is false when any path segment is missing.
func (c *DeviceConfiguration) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var current any = c.tree
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Update applies a set of dotted-path assignments to the tree, creating
// intermediate maps as needed. Existing non-map values on the path are
// replaced by maps.
func (c *DeviceConfiguration) Update(updates map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tree == nil {
		c.tree = make(map[string]any)
	}
	for path, value := range updates {
		setNested(c.tree, strings.Split(path, "."), value)
	}
}

// replace swaps the whole tree, used when the device config is (re)fetched.
func (c *DeviceConfiguration) replace(tree map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree = tree
}

// invalidate clears the tree so the next Update() refetches it.
func (c *DeviceConfiguration) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree = nil
}

func setNested(tree map[string]any, keys []string, value any) {
	for _, key := range keys[:len(keys)-1] {
		next, ok := tree[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			tree[key] = next
		}
		tree = next
	}
	tree[keys[len(keys)-1]] = value
}

package plugins

import (
	"context"
	"testing"
)

// fakePlugin is a minimal Plugin for registry tests.
type fakePlugin struct {
	name  string
	tools []string
}

func (f *fakePlugin) Name() string                        { return f.name }
func (f *fakePlugin) Tools() []string                     { return f.tools }
func (f *fakePlugin) Select(string) (*Envelope, bool)     { return nil, false }
func (f *fakePlugin) Commands() map[string]CommandHandler { return nil }
func (f *fakePlugin) Routes() []Route                     { return nil }
func (f *fakePlugin) Probe(context.Context) []ProbeResult { return nil }

func TestNewRegistry_Lookups(t *testing.T) {
	gh := &fakePlugin{name: "github", tools: []string{"gh"}}
	gs := &fakePlugin{name: "gsuite", tools: []string{"gam"}}

	r, err := NewRegistry(gh, gs)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if p, ok := r.ByName("github"); !ok || p != Plugin(gh) {
		t.Error("ByName(github) did not return the github plugin")
	}
	if p, ok := r.ByTool("gam"); !ok || p != Plugin(gs) {
		t.Error("ByTool(gam) did not return the gsuite plugin")
	}
	if _, ok := r.ByTool("kubectl"); ok {
		t.Error("ByTool should miss for unclaimed tools")
	}

	all := r.All()
	if len(all) != 2 || all[0] != Plugin(gh) || all[1] != Plugin(gs) {
		t.Error("All should preserve registration order")
	}
}

func TestNewRegistry_RejectsToolCollision(t *testing.T) {
	a := &fakePlugin{name: "a", tools: []string{"gh"}}
	b := &fakePlugin{name: "b", tools: []string{"gh"}}

	if _, err := NewRegistry(a, b); err == nil {
		t.Fatal("expected error for colliding tool sets")
	}
}

func TestNewRegistry_RejectsDuplicateName(t *testing.T) {
	a := &fakePlugin{name: "dup", tools: []string{"x"}}
	b := &fakePlugin{name: "dup", tools: []string{"y"}}

	if _, err := NewRegistry(a, b); err == nil {
		t.Fatal("expected error for duplicate plugin name")
	}
}

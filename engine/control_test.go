// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"slices"
	"testing"
)

func TestControl(t *testing.T) {
	c := NewControl("Shadow", DefaultShadowParams())
	var ctl Controller = c
	if ctl.Name() != "Shadow" {
		t.Fatalf("Control.Name:\nhave %q\nwant %q", ctl.Name(), "Shadow")
	}

	p := c.Ptr()
	p.DepthBiasConstant = 42
	if c.Value().DepthBiasConstant != 42 || ctl.Get().(ShadowParams).DepthBiasConstant != 42 {
		t.Fatal("Control.Ptr: write not visible through Value/Get")
	}
	if ctl.GetDefault().(ShadowParams) != DefaultShadowParams() || c.Default() != DefaultShadowParams() {
		t.Fatal("Control.Default: default modified")
	}

	if err := ctl.SetAny(Selection{}); err == nil {
		t.Fatal("Control.SetAny: should fail with wrong type")
	}
	if c.Value().DepthBiasConstant != 42 {
		t.Fatal("Control.SetAny: failure modified the value")
	}
	v := DefaultShadowParams()
	v.DepthBiasSlope = -1
	if err := ctl.SetAny(v); err != nil {
		t.Fatalf("Control.SetAny: unexpected error: %v", err)
	}
	if c.Value() != v {
		t.Fatalf("Control.SetAny:\nhave %+v\nwant %+v", c.Value(), v)
	}

	ctl.Reset()
	if c.Value() != DefaultShadowParams() {
		t.Fatal("Control.Reset: value is not the default")
	}
	c.Set(v)
	if c.Value() != v {
		t.Fatal("Control.Set: value not replaced")
	}
}

func TestControls(t *testing.T) {
	cs := make(Controls)
	cs.add(NewControl("b", 1), NewControl("a", "x"), NewControl("c", Selection{}))
	if names := cs.Names(); !slices.Equal(names, []string{"a", "b", "c"}) {
		t.Fatalf("Controls.Names:\nhave %v\nwant [a b c]", names)
	}
	if cs["a"].Get().(string) != "x" {
		t.Fatal("Controls: wrong controller")
	}
}

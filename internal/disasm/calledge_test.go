package disasm

import (
	"testing"

	"unlua/internal/chunk"
	"unlua/internal/chunk/chunktest"
	"unlua/internal/luafmt"
)

func TestCallSitesLoop(t *testing.T) {
	l := mustListing(t, chunktest.Lua53Loop())
	sites := CallSites(l.Table, l.Main, DefaultWindow)
	want := []CallSite{
		{PC: 8, Kind: "call", Callee: "inc", Func: "main/0"},
		{PC: 16, Kind: "call", Callee: "print"},
	}
	if len(sites) != len(want) {
		t.Fatalf("sites = %+v", sites)
	}
	for i := range want {
		if sites[i] != want[i] {
			t.Errorf("site %d = %+v, want %+v", i, sites[i], want[i])
		}
	}
}

func TestCallSitesHello(t *testing.T) {
	c, err := chunk.Decode(chunktest.Lua51Hello(), luafmt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	l := mustListing(t, c)
	sites := CallSites(l.Table, l.Main, DefaultWindow)
	if len(sites) != 1 || sites[0] != (CallSite{PC: 2, Kind: "call", Callee: "print"}) {
		t.Errorf("sites = %+v", sites)
	}
}

func TestCallSitesFields(t *testing.T) {
	// 5.1: local s = string.format(...); obj:m(); tail call through an upvalue
	p := &chunk.Prototype{
		NumUpvalues: 1,
		Code: []uint32{
			chunktest.ABx(5, 0, 0),                   // GETGLOBAL 0 "string"
			chunktest.ABC(6, 0, 0, chunktest.RK(1)),  // GETTABLE 0 0 "format"
			chunktest.ABC(28, 0, 1, 2),               // CALL 0 1 2
			chunktest.ABC(11, 1, 0, chunktest.RK(2)), // SELF 1 0 "m"
			chunktest.ABC(28, 1, 2, 1),               // CALL 1 2 1
			chunktest.ABC(4, 2, 0, 0),                // GETUPVAL 2 0
			chunktest.ABC(29, 2, 1, 0),               // TAILCALL 2 1 0
			chunktest.ABC(30, 2, 0, 0),               // RETURN 2 0
		},
		Constants: []chunk.Constant{chunk.StringConst("string"), chunk.StringConst("format"), chunk.StringConst("m")},
		Debug:     chunk.DebugInfo{UpvalueNames: []chunk.String{chunk.Str("cb")}},
	}
	l, err := Disassemble(&chunk.Chunk{Header: chunk.DefaultHeader(chunk.Lua51), Main: p}, mustTable(t, chunk.Lua51))
	if err != nil {
		t.Fatal(err)
	}
	sites := CallSites(l.Table, l.Main, DefaultWindow)
	want := []CallSite{
		{PC: 2, Kind: "call", Callee: "string.format"},
		{PC: 4, Kind: "call", Callee: "?:m"},
		{PC: 6, Kind: "tailcall", Callee: "cb"},
	}
	if len(sites) != len(want) {
		t.Fatalf("sites = %+v", sites)
	}
	for i := range want {
		if sites[i] != want[i] {
			t.Errorf("site %d = %+v, want %+v", i, sites[i], want[i])
		}
	}
}

func TestRegTrackerWindow(t *testing.T) {
	rt := NewRegTracker(2)
	rt.Define(3, RegDef{Name: "print"})
	rt.Tick()
	rt.Tick()
	if rt.Lookup(3).Name != "print" {
		t.Error("definition expired too early")
	}
	rt.Tick()
	if rt.Lookup(3).Name != "" {
		t.Error("definition should have expired")
	}
	rt.Define(4, RegDef{Name: "a"})
	rt.Define(5, RegDef{Name: "b"})
	rt.KillFrom(5)
	if rt.Lookup(4).Name != "a" || rt.Lookup(5).Name != "" {
		t.Error("KillFrom")
	}
	rt.KillFrom(0)
	if rt.Lookup(4).Name != "" || rt.Lookup(300).Name != "" {
		t.Error("KillFrom(0)")
	}
}

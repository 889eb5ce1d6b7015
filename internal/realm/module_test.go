package realm

import (
	"errors"
	"testing"
)

func TestLoadModule_Circular(t *testing.T) {
	f := newFixture(t, nil)
	builds := 0
	var circular *Definition
	circular = &Definition{Name: "circular", Build: func(r *Root) (*Module, error) {
		builds++
		return &Module{Requires: []*Definition{circular}}, nil
	}}
	if err := f.root.LoadModule(circular); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if builds != 1 || f.root.LoadedModules() != 1 || !f.root.ModuleLoaded(circular) {
		t.Fatalf("builds=%d loaded=%d", builds, f.root.LoadedModules())
	}
	if err := f.root.LoadModule(circular); err != nil || builds != 1 {
		t.Fatalf("second load err=%v builds=%d", err, builds)
	}
}

func TestLoadModule_MutualDependencies(t *testing.T) {
	f := newFixture(t, nil)
	var a, b *Definition
	a = &Definition{Name: "a", Build: func(r *Root) (*Module, error) {
		return &Module{Requires: []*Definition{b}}, nil
	}}
	b = &Definition{Name: "b", Build: func(r *Root) (*Module, error) {
		return &Module{Requires: []*Definition{a}}, nil
	}}
	if err := f.root.LoadModule(a); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if f.root.LoadedModules() != 2 {
		t.Fatalf("loaded=%d", f.root.LoadedModules())
	}
}

func TestLoadModule_ErrorRemovesAndRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	boom := errors.New("constructor failed")
	bad := &Definition{Name: "bad", Build: func(r *Root) (*Module, error) {
		return nil, boom
	}}
	if err := f.root.LoadModule(bad); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if f.root.ModuleLoaded(bad) {
		t.Fatalf("bad module left in loaded set")
	}

	good := &Definition{Name: "good", Build: func(r *Root) (*Module, error) {
		return &Module{
			Triggers: []*Matcher{trigger(t, 0, nil, "x")},
			Macros:   map[string]Macro{"f1": func(*Root) (bool, error) { return false, nil }},
			Requires: []*Definition{bad},
		}, nil
	}}
	if err := f.root.LoadModule(good); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if f.root.ModuleLoaded(good) || f.root.ModuleLoaded(bad) || f.root.LoadedModules() != 0 {
		t.Fatalf("loaded=%d", f.root.LoadedModules())
	}
	if len(f.root.Triggers()) != 0 {
		t.Fatalf("triggers not rolled back: %v", f.root.Triggers())
	}
	if ok, _ := f.root.MaybeDoMacro("f1"); ok {
		t.Fatalf("macro not rolled back")
	}
}

func TestLoadModule_PanicIsAnError(t *testing.T) {
	f := newFixture(t, nil)
	def := &Definition{Name: "panicky", Build: func(r *Root) (*Module, error) {
		panic("nope")
	}}
	if err := f.root.LoadModule(def); err == nil || f.root.ModuleLoaded(def) {
		t.Fatalf("err=%v loaded=%v", err, f.root.ModuleLoaded(def))
	}
}

func TestMacros(t *testing.T) {
	var calledWith []*Root
	f := newFixture(t, func(o *Options) {
		o.Macros = map[string]Macro{
			"f1": func(r *Root) (bool, error) { calledWith = append(calledWith, r); return false, nil },
			"f2": func(r *Root) (bool, error) { return true, nil },
			"f3": func(r *Root) (bool, error) { return false, errors.New("bad macro") },
			"f4": func(r *Root) (bool, error) { panic(ErrInterrupt) },
		}
	})

	if ok, err := f.root.MaybeDoMacro("f9"); ok || err != nil {
		t.Fatalf("unbound ok=%v err=%v", ok, err)
	}
	if ok, err := f.root.MaybeDoMacro("f1"); !ok || err != nil {
		t.Fatalf("f1 ok=%v err=%v", ok, err)
	}
	if len(calledWith) != 1 || calledWith[0] != f.root {
		t.Fatalf("calledWith=%v", calledWith)
	}
	if ok, _ := f.root.MaybeDoMacro("f2"); ok {
		t.Fatalf("macro asking to continue consumed the key")
	}
	if ok, err := f.root.MaybeDoMacro("f3"); !ok || err != nil || len(f.reporter.errs) != 1 {
		t.Fatalf("f3 ok=%v err=%v reported=%v", ok, err, f.reporter.errs)
	}
	if _, err := f.root.MaybeDoMacro("f4"); !errors.Is(err, ErrInterrupt) {
		t.Fatalf("interrupt swallowed: %v", err)
	}
}

func TestClearModulesKeepsBakedMacros(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Macros = map[string]Macro{"f12": func(r *Root) (bool, error) { return false, nil }}
	})
	def := &Definition{Name: "m", Build: func(r *Root) (*Module, error) {
		return &Module{
			Aliases: []*Matcher{alias(t, 0, nil, "x")},
			Macros:  map[string]Macro{"f5": func(r *Root) (bool, error) { return false, nil }},
		}, nil
	}}
	if err := f.root.LoadModule(def); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	f.root.ClearModules()
	if len(f.root.Aliases()) != 0 || f.root.LoadedModules() != 0 {
		t.Fatalf("aliases=%d loaded=%d", len(f.root.Aliases()), f.root.LoadedModules())
	}
	if ok, _ := f.root.MaybeDoMacro("f5"); ok {
		t.Fatalf("module macro survived clear")
	}
	if ok, _ := f.root.MaybeDoMacro("f12"); !ok {
		t.Fatalf("baked-in macro lost")
	}
}

func TestReloadMainModule(t *testing.T) {
	loads := 0
	def := &Definition{Name: "main", Build: func(r *Root) (*Module, error) {
		loads++
		return &Module{Triggers: []*Matcher{trigger(t, 0, nil, "x")}}, nil
	}}
	f := newFixture(t, func(o *Options) {
		o.MainModule = func() (*Definition, error) { return def, nil }
	})
	if err := f.root.ReloadMainModule(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := f.root.ReloadMainModule(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loads != 2 || len(f.root.Triggers()) != 1 {
		t.Fatalf("loads=%d triggers=%d", loads, len(f.root.Triggers()))
	}

	g := newFixture(t, nil)
	if err := g.root.ReloadMainModule(); err == nil {
		t.Fatalf("reload without main module succeeded")
	}
}

func TestReloadDoesNotDuplicateEventHandlers(t *testing.T) {
	calls := 0
	def := &Definition{Name: "events", Build: func(r *Root) (*Module, error) {
		r.RegisterEventHandler("kill", func(args ...any) error {
			calls++
			return nil
		})
		return &Module{}, nil
	}}
	f := newFixture(t, func(o *Options) {
		o.MainModule = func() (*Definition, error) { return def, nil }
	})
	if err := f.root.LoadModule(def); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if err := f.root.ReloadMainModule(); err != nil {
		t.Fatalf("ReloadMainModule: %v", err)
	}
	f.root.FireEvent("kill")
	f.loop.RunPending()
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestFailedLoadDropsItsEventHandlers(t *testing.T) {
	f := newFixture(t, nil)
	def := &Definition{Name: "broken", Build: func(r *Root) (*Module, error) {
		r.RegisterEventHandler("kill", func(args ...any) error { return nil })
		return nil, errors.New("syntax error")
	}}
	if err := f.root.LoadModule(def); err == nil {
		t.Fatalf("LoadModule succeeded")
	}
	if n := len(f.root.events["kill"]); n != 0 {
		t.Fatalf("handlers=%d", n)
	}
}

package realm

import (
	"errors"
	"fmt"
	"maps"
)

// Macro runs on a key chord. Returning true lets the UI carry on handling
// the key.
type Macro func(r *Root) (bool, error)

// Module is what a Definition contributes when built.
type Module struct {
	Triggers []*Matcher
	Aliases  []*Matcher
	GMCP     []*GMCPHandler
	Macros   map[string]Macro
	Requires []*Definition
}

// Definition identifies a module. Identity is the pointer: loading the same
// *Definition twice is a no-op.
type Definition struct {
	Name  string
	Build func(r *Root) (*Module, error)
}

func (d *Definition) String() string {
	if d == nil {
		return "<nil module>"
	}
	return d.Name
}

type loadSnapshot struct {
	triggers, aliases, gmcp int
	macros                  map[string]Macro
	events                  map[string][]EventHandler
	loaded                  map[*Definition]struct{}
}

// LoadModule loads def and its dependencies, then sorts the handler lists
// by sequence. If anything fails, every registration made by this call is
// undone and the error is returned.
func (r *Root) LoadModule(def *Definition) error {
	if def == nil {
		return errors.New("load module: nil definition")
	}
	snap := loadSnapshot{
		triggers: len(r.triggers),
		aliases:  len(r.aliases),
		gmcp:     len(r.gmcpHandlers),
		macros:   maps.Clone(r.macros),
		events:   maps.Clone(r.events),
		loaded:   maps.Clone(r.loaded),
	}
	if err := r.loadModule(def); err != nil {
		r.triggers = r.triggers[:snap.triggers]
		r.aliases = r.aliases[:snap.aliases]
		r.gmcpHandlers = r.gmcpHandlers[:snap.gmcp]
		r.macros = snap.macros
		r.events = snap.events
		r.loaded = snap.loaded
		return err
	}
	sortMatchers(r.triggers)
	sortMatchers(r.aliases)
	sortGMCP(r.gmcpHandlers)
	return nil
}

func (r *Root) loadModule(def *Definition) (err error) {
	if _, ok := r.loaded[def]; ok {
		return nil
	}
	// Marked before dependencies load so that cycles terminate.
	r.loaded[def] = struct{}{}
	defer func() {
		if err != nil {
			delete(r.loaded, def)
		}
	}()

	if def.Build == nil {
		return fmt.Errorf("module %s: no build function", def)
	}
	mod, err := r.buildModule(def)
	if err != nil {
		return err
	}
	r.triggers = append(r.triggers, mod.Triggers...)
	r.aliases = append(r.aliases, mod.Aliases...)
	r.gmcpHandlers = append(r.gmcpHandlers, mod.GMCP...)
	for chord, m := range mod.Macros {
		r.macros[chord] = m
	}
	for _, dep := range mod.Requires {
		if dep == nil {
			continue
		}
		if err := r.loadModule(dep); err != nil {
			return fmt.Errorf("module %s: %w", def, err)
		}
	}
	r.log.Debug("module loaded", "module", def.Name)
	return nil
}

func (r *Root) buildModule(def *Definition) (mod *Module, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("module %s: panic: %v", def, p)
		}
	}()
	mod, err = def.Build(r)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", def, err)
	}
	if mod == nil {
		mod = &Module{}
	}
	return mod, nil
}

// ModuleLoaded reports whether def is in the loaded set.
func (r *Root) ModuleLoaded(def *Definition) bool {
	_, ok := r.loaded[def]
	return ok
}

// LoadedModules returns how many modules are loaded.
func (r *Root) LoadedModules() int { return len(r.loaded) }

// ClearModules drops every matcher, GMCP handler, event handler and loaded
// module, and restores the baked-in macros. Event handlers are only
// registered while modules build, so none survive a reload.
func (r *Root) ClearModules() {
	r.triggers = r.triggers[:0]
	r.aliases = r.aliases[:0]
	r.gmcpHandlers = r.gmcpHandlers[:0]
	r.events = map[string][]EventHandler{}
	r.macros = maps.Clone(r.bakedMacros)
	if r.macros == nil {
		r.macros = map[string]Macro{}
	}
	r.loaded = map[*Definition]struct{}{}
}

// ReloadMainModule clears everything and loads the main module again.
func (r *Root) ReloadMainModule() error {
	if r.mainModule == nil {
		return errors.New("reload: no main module configured")
	}
	def, err := r.mainModule()
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	r.ClearModules()
	return r.LoadModule(def)
}

// HasMacro reports whether a macro is bound to chord.
func (r *Root) HasMacro(chord string) bool {
	_, ok := r.macros[chord]
	return ok
}

// MaybeDoMacro runs the macro bound to chord. It reports whether the key
// was consumed: false when no macro is bound or the macro let the UI carry
// on. A failing macro is reported and still consumes the key; ErrInterrupt
// is returned.
func (r *Root) MaybeDoMacro(chord string) (bool, error) {
	m, ok := r.macros[chord]
	if !ok {
		return false, nil
	}
	cont, err := r.runMacro(chord, m)
	if err != nil {
		if errors.Is(err, ErrInterrupt) {
			return false, err
		}
		r.reporter.Report(err)
		return true, nil
	}
	return !cont, nil
}

func (r *Root) runMacro(chord string, m Macro) (cont bool, err error) {
	defer recoverInto(&err, "macro "+chord)
	cont, err = m(r)
	if err != nil && !errors.Is(err, ErrInterrupt) {
		err = &HandlerError{Source: "macro " + chord, Err: err}
	}
	return cont, err
}

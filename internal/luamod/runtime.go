package luamod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"

	"mudlink/internal/lookup"
	"mudlink/internal/realm"
)

// CallTimeout bounds a single handler or module body.
const CallTimeout = 2 * time.Second

var ErrNoModule = errors.New("no module path configured")

const interruptMessage = "mud.interrupt"

// Runtime owns the Lua state shared by every module of one session. It is
// not safe for concurrent use; everything runs on the session loop.
type Runtime struct {
	L    *lua.LState
	main string
	defs map[string]*realm.Definition

	root *realm.Root
	// module under construction and the directory requires resolve against.
	current    *realm.Module
	currentDir string

	fetcher Fetcher

	interrupted bool
	depth       int
}

// Fetcher runs background JSON lookups for mud.lookup. done must be
// delivered on the session goroutine.
type Fetcher interface {
	Fetch(url string, done func(lookup.Result, error))
}

// NewRuntime prepares a sandboxed Lua state. main is the main module path.
func NewRuntime(main string) *Runtime {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	// No io, os, debug or package: modules talk to the world through mud.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	rt := &Runtime{L: L, main: main, defs: map[string]*realm.Definition{}}
	rt.installAPI()
	return rt
}

func (rt *Runtime) Close() { rt.L.Close() }

// SetFetcher enables mud.lookup.
func (rt *Runtime) SetFetcher(f Fetcher) { rt.fetcher = f }

// Main returns the definition of the main module. It is the loader handed
// to realm.Options.MainModule.
func (rt *Runtime) Main() (*realm.Definition, error) {
	if rt.main == "" {
		return nil, ErrNoModule
	}
	return rt.Definition(rt.main)
}

// Definition returns the module definition for path. The same file always
// yields the same definition, so require cycles terminate.
func (rt *Runtime) Definition(path string) (*realm.Definition, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", path, err)
	}
	if def, ok := rt.defs[abs]; ok {
		return def, nil
	}
	def := &realm.Definition{
		Name:  filepath.Base(abs),
		Build: func(r *realm.Root) (*realm.Module, error) { return rt.build(r, abs) },
	}
	rt.defs[abs] = def
	return def, nil
}

func (rt *Runtime) build(r *realm.Root, path string) (*realm.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fn, err := rt.L.Load(bytes.NewReader(src), "@"+path)
	if err != nil {
		return nil, err
	}

	rt.root = r
	mod := &realm.Module{Macros: map[string]realm.Macro{}}
	prevMod, prevDir := rt.current, rt.currentDir
	rt.current, rt.currentDir = mod, filepath.Dir(path)
	defer func() { rt.current, rt.currentDir = prevMod, prevDir }()

	if _, err := rt.call(fn, 0); err != nil {
		return nil, err
	}
	return mod, nil
}

// call runs fn under the time limit and maps mud.interrupt() to
// realm.ErrInterrupt.
func (rt *Runtime) call(fn *lua.LFunction, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	// Handlers re-enter through ctx:send; only the outermost call owns the
	// deadline and the interrupt flag.
	if rt.depth == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
		defer cancel()
		rt.L.SetContext(ctx)
		defer rt.L.RemoveContext()
		rt.interrupted = false
	}
	rt.depth++
	defer func() { rt.depth-- }()

	top := rt.L.GetTop()
	err := rt.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...)
	if rt.interrupted {
		if rt.depth == 1 {
			rt.interrupted = false
		}
		rt.L.SetTop(top)
		return nil, realm.ErrInterrupt
	}
	if err != nil {
		rt.L.SetTop(top)
		return nil, err
	}
	out := make([]lua.LValue, 0, nret)
	for i := top + 1; i <= rt.L.GetTop(); i++ {
		out = append(out, rt.L.Get(i))
	}
	rt.L.SetTop(top)
	return out, nil
}

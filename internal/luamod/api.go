package luamod

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"

	"mudlink/internal/gmcp"
	"mudlink/internal/lookup"
	"mudlink/internal/realm"
)

func (rt *Runtime) installAPI() {
	L := rt.L
	mud := L.NewTable()
	L.SetFuncs(mud, map[string]lua.LGFunction{
		"trigger":   rt.luaMatcher(realm.TriggerKind),
		"alias":     rt.luaMatcher(realm.AliasKind),
		"gmcp":      rt.luaGMCP,
		"macro":     rt.luaMacro,
		"require":   rt.luaRequire,
		"send":      rt.luaSend,
		"write":     rt.luaWrite,
		"cwrite":    rt.luaCWrite,
		"get_state": rt.luaGetState,
		"set_state": rt.luaSetState,
		"timer":     rt.luaTimer,
		"on":        rt.luaOn,
		"fire":      rt.luaFire,
		"trace":     rt.luaTrace,
		"hide":      rt.luaHide,
		"channels":  rt.luaChannels,
		"interrupt": rt.luaInterrupt,
		"lookup":    rt.luaLookup,
	})
	L.SetGlobal("mud", mud)
}

func (rt *Runtime) needRoot(L *lua.LState) *realm.Root {
	if rt.root == nil {
		L.RaiseError("mud: no session")
	}
	return rt.root
}

func (rt *Runtime) needModule(L *lua.LState, what string) *realm.Module {
	if rt.current == nil {
		L.RaiseError("mud.%s: only allowed while a module loads", what)
	}
	return rt.current
}

// raise turns a Go error from the session into a Lua error, keeping
// interrupts recognisable.
func (rt *Runtime) raise(L *lua.LState, err error) {
	if errors.Is(err, realm.ErrInterrupt) {
		rt.interrupted = true
		L.RaiseError(interruptMessage)
	}
	L.RaiseError("%s", err.Error())
}

type options struct {
	name     string
	sequence int
}

func readOptions(L *lua.LState, idx int) options {
	var o options
	t, ok := L.Get(idx).(*lua.LTable)
	if !ok {
		return o
	}
	if v, ok := t.RawGetString("name").(lua.LString); ok {
		o.name = string(v)
	}
	if v, ok := t.RawGetString("sequence").(lua.LNumber); ok {
		o.sequence = int(v)
	}
	return o
}

func patternsArg(L *lua.LState, idx int) []string {
	switch v := L.Get(idx).(type) {
	case lua.LString:
		return []string{string(v)}
	case *lua.LTable:
		var out []string
		v.ForEach(func(_, p lua.LValue) {
			out = append(out, p.String())
		})
		return out
	default:
		L.ArgError(idx, "pattern string or list expected")
		return nil
	}
}

// mud.trigger(pattern|{patterns}, fn(m, ctx) [, {sequence=, name=}])
func (rt *Runtime) luaMatcher(kind realm.Kind) lua.LGFunction {
	return func(L *lua.LState) int {
		mod := rt.needModule(L, kind.String())
		patterns := patternsArg(L, 1)
		fn := L.CheckFunction(2)
		o := readOptions(L, 3)
		m, err := realm.NewMatcher(kind, o.name, o.sequence, rt.matchHandler(fn), patterns...)
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		if kind == realm.AliasKind {
			mod.Aliases = append(mod.Aliases, m)
		} else {
			mod.Triggers = append(mod.Triggers, m)
		}
		return 0
	}
}

func (rt *Runtime) matchHandler(fn *lua.LFunction) realm.Handler {
	return func(m *realm.Match, c *realm.Context) error {
		_, err := rt.call(fn, 0, rt.matchTable(m), rt.contextTable(c))
		return err
	}
}

func (rt *Runtime) matchTable(m *realm.Match) *lua.LTable {
	t := rt.L.NewTable()
	t.RawSetString("text", lua.LString(m.Text()))
	t.RawSetString("input", lua.LString(m.Input))
	for i, g := range m.Groups() {
		t.RawSetInt(i+1, lua.LString(g))
	}
	return t
}

// contextTable exposes a matching context as methods: ctx:write(s),
// ctx:send(s, echo), ctx:gag(), ctx:no_send() and so on.
func (rt *Runtime) contextTable(c *realm.Context) *lua.LTable {
	L := rt.L
	t := L.NewTable()
	L.SetFuncs(t, map[string]lua.LGFunction{
		"write": func(L *lua.LState) int {
			c.Write(L.CheckString(2), L.OptBool(3, false))
			return 0
		},
		"cwrite": func(L *lua.LState) int {
			c.CWrite(L.CheckString(2), L.OptBool(3, false))
			return 0
		},
		"send": func(L *lua.LState) int {
			if err := c.Send(L.CheckString(2), L.OptBool(3, false)); err != nil {
				rt.raise(L, err)
			}
			return 0
		},
		"send_after": func(L *lua.LState) int {
			c.SendAfter(L.CheckString(2), L.OptBool(3, false))
			return 0
		},
		"safe_send": func(L *lua.LState) int {
			if err := c.SafeSend(L.CheckString(2), L.OptBool(3, false)); err != nil {
				rt.raise(L, err)
			}
			return 0
		},
		"gag": func(L *lua.LState) int {
			c.DisplayLine = false
			return 0
		},
		"no_send": func(L *lua.LState) int {
			c.SendToMUD = false
			return 0
		},
		"no_echo": func(L *lua.LState) int {
			c.Echo = false
			return 0
		},
		"trace": func(L *lua.LState) int {
			c.Trace(L.CheckString(2))
			return 0
		},
		"fire": func(L *lua.LState) int {
			c.FireEvent(L.CheckString(2), rt.goArgs(L, 3)...)
			return 0
		},
	})
	if c.Line != nil {
		t.RawSetString("line", lua.LString(c.Line.Text))
	}
	if c.Command != "" {
		t.RawSetString("command", lua.LString(c.Command))
	}
	return t
}

// mud.gmcp(package, fn(pkg, data, raw) [, {sequence=, name=}])
func (rt *Runtime) luaGMCP(L *lua.LState) int {
	mod := rt.needModule(L, "gmcp")
	pkg := L.CheckString(1)
	fn := L.CheckFunction(2)
	o := readOptions(L, 3)
	mod.GMCP = append(mod.GMCP, &realm.GMCPHandler{
		Name:     o.name,
		Package:  pkg,
		Sequence: o.sequence,
		Handler: func(msg gmcp.Message, r *realm.Root) error {
			_, err := rt.call(fn, 0, lua.LString(msg.Package), fromJSON(rt.L, msg.Data), lua.LString(msg.Raw))
			return err
		},
	})
	return 0
}

// mud.macro(chord, fn) -- fn returns true to let the UI handle the key too.
func (rt *Runtime) luaMacro(L *lua.LState) int {
	mod := rt.needModule(L, "macro")
	chord := L.CheckString(1)
	fn := L.CheckFunction(2)
	mod.Macros[chord] = func(r *realm.Root) (bool, error) {
		ret, err := rt.call(fn, 1)
		if err != nil {
			return false, err
		}
		return len(ret) > 0 && lua.LVAsBool(ret[0]), nil
	}
	return 0
}

// mud.require(path) -- relative to the requiring file.
func (rt *Runtime) luaRequire(L *lua.LState) int {
	mod := rt.needModule(L, "require")
	path := L.CheckString(1)
	if !filepath.IsAbs(path) {
		path = filepath.Join(rt.currentDir, path)
	}
	def, err := rt.Definition(path)
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	mod.Requires = append(mod.Requires, def)
	return 0
}

func (rt *Runtime) luaSend(L *lua.LState) int {
	r := rt.needRoot(L)
	if err := r.Send(L.CheckString(1), L.OptBool(2, true)); err != nil {
		rt.raise(L, err)
	}
	return 0
}

func (rt *Runtime) luaWrite(L *lua.LState) int {
	rt.needRoot(L).Write(L.CheckString(1), L.OptBool(2, false))
	return 0
}

func (rt *Runtime) luaCWrite(L *lua.LState) int {
	rt.needRoot(L).CWrite(L.CheckString(1), L.OptBool(2, false))
	return 0
}

func (rt *Runtime) luaGetState(L *lua.LState) int {
	L.Push(lua.LString(rt.needRoot(L).GetState(L.CheckString(1))))
	return 1
}

func (rt *Runtime) luaSetState(L *lua.LState) int {
	rt.needRoot(L).SetState(L.CheckString(1), L.CheckAny(2).String())
	return 0
}

// mud.timer(seconds, fn) returns a function that cancels the timer.
func (rt *Runtime) luaTimer(L *lua.LState) int {
	r := rt.needRoot(L)
	secs := float64(L.CheckNumber(1))
	fn := L.CheckFunction(2)
	t := r.SetTimer(time.Duration(secs*float64(time.Second)), func(*realm.Root) error {
		_, err := rt.call(fn, 0)
		return err
	})
	L.Push(L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(t.Cancel()))
		return 1
	}))
	return 1
}

// mud.on(event, fn(...))
func (rt *Runtime) luaOn(L *lua.LState) int {
	r := rt.needRoot(L)
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	r.RegisterEventHandler(name, func(args ...any) error {
		vals := make([]lua.LValue, len(args))
		for i, a := range args {
			vals[i] = toLua(rt.L, a)
		}
		_, err := rt.call(fn, 0, vals...)
		return err
	})
	return 0
}

func (rt *Runtime) luaFire(L *lua.LState) int {
	rt.needRoot(L).FireEvent(L.CheckString(1), rt.goArgs(L, 2)...)
	return 0
}

func (rt *Runtime) luaTrace(L *lua.LState) int {
	rt.needRoot(L).Trace(L.CheckString(1))
	return 0
}

func (rt *Runtime) luaHide(L *lua.LState) int {
	rt.needRoot(L).HideNextLines(L.CheckInt(1))
	return 0
}

func (rt *Runtime) luaChannels(L *lua.LState) int {
	r := rt.needRoot(L)
	var chans []string
	for i := 1; i <= L.GetTop(); i++ {
		chans = append(chans, L.CheckString(i))
	}
	r.SetActiveChannels(chans)
	return 0
}

func (rt *Runtime) luaInterrupt(L *lua.LState) int {
	rt.interrupted = true
	L.RaiseError(interruptMessage)
	return 0
}

// mud.lookup(url, fn(doc, err)) fetches a JSON document in the background.
// fn later gets the decoded document, or nil and an error message.
func (rt *Runtime) luaLookup(L *lua.LState) int {
	r := rt.needRoot(L)
	url := L.CheckString(1)
	fn := L.CheckFunction(2)
	if rt.fetcher == nil {
		L.RaiseError("mud.lookup: lookups are disabled")
	}
	rt.fetcher.Fetch(url, func(res lookup.Result, err error) {
		r.RunCallback("lookup "+url, func(*realm.Root) error {
			if err != nil {
				_, cerr := rt.call(fn, 0, lua.LNil, lua.LString(err.Error()))
				return cerr
			}
			_, cerr := rt.call(fn, 0, fromJSON(rt.L, res.Body))
			return cerr
		})
	})
	return 0
}

func (rt *Runtime) goArgs(L *lua.LState, from int) []any {
	var out []any
	for i := from; i <= L.GetTop(); i++ {
		out = append(out, fromLua(L.Get(i)))
	}
	return out
}

func (rt *Runtime) String() string {
	return fmt.Sprintf("luamod(%s)", rt.main)
}

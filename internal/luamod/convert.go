package luamod

import (
	"fmt"

	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"
)

// fromJSON converts a decoded GMCP document to Lua values. Arrays become
// 1-based tables and null becomes nil.
func fromJSON(L *lua.LState, v gjson.Result) lua.LValue {
	switch v.Type {
	case gjson.String:
		return lua.LString(v.Str)
	case gjson.Number:
		return lua.LNumber(v.Num)
	case gjson.True:
		return lua.LTrue
	case gjson.False:
		return lua.LFalse
	case gjson.JSON:
		t := L.NewTable()
		if v.IsArray() {
			i := 1
			v.ForEach(func(_, item gjson.Result) bool {
				t.RawSetInt(i, fromJSON(L, item))
				i++
				return true
			})
			return t
		}
		v.ForEach(func(k, item gjson.Result) bool {
			t.RawSetString(k.String(), fromJSON(L, item))
			return true
		})
		return t
	default:
		return lua.LNil
	}
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []string:
		t := L.NewTable()
		for _, s := range x {
			t.Append(lua.LString(s))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

// fromLua converts scalars to Go values; tables and functions pass through
// as Lua values so handlers written in Lua get them back unchanged.
func fromLua(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LString:
		return string(x)
	case lua.LNumber:
		return float64(x)
	case lua.LBool:
		return bool(x)
	case *lua.LNilType:
		return nil
	default:
		return v
	}
}

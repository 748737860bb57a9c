package validate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// LuaTimeout bounds a single scripted validator call.
var LuaTimeout = 2 * time.Second

// Lua compiles script into a validator. The script must define a global
// function validate(value) that either returns the (possibly transformed)
// value, returns nothing to keep the value unchanged, returns false plus a
// message, or raises error(msg).
//
// Scripts run in a fresh sandboxed state per call: no io, os, or module
// loading, and no random numbers.
func Lua(name, script string) (Validator, error) {
	chunk, err := parse.Parse(strings.NewReader(script), name)
	if err != nil {
		return Validator{}, fmt.Errorf("parse lua validator %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return Validator{}, fmt.Errorf("compile lua validator %s: %w", name, err)
	}

	return New(name, func(value any) (any, error) {
		return runLua(proto, value)
	}), nil
}

func runLua(proto *lua.FunctionProto, value any) (any, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openSafeLibs(L)

	ctx, cancel := context.WithTimeout(context.Background(), LuaTimeout)
	defer cancel()
	L.SetContext(ctx)

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}

	fn := L.GetGlobal("validate")
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("script must define a 'validate' function")
	}

	top := L.GetTop()
	L.Push(fn)
	L.Push(goToLua(L, value))
	if err := L.PCall(1, lua.MultRet, nil); err != nil {
		if apiErr, ok := err.(*lua.ApiError); ok {
			return nil, fmt.Errorf("%s", luaMessage(apiErr))
		}
		return nil, err
	}

	nret := L.GetTop() - top
	if nret == 0 {
		return value, nil
	}
	first := L.Get(top + 1)
	if first == lua.LFalse {
		msg := "rejected"
		if nret > 1 {
			msg = L.Get(top + 2).String()
		}
		return nil, fmt.Errorf("%s", msg)
	}
	if first == lua.LNil {
		return value, nil
	}
	return conformNumbers(luaToGo(first), value), nil
}

// conformNumbers restores the Go number types of in on out. Lua has a single
// number type, so 4.0 comes back as int(4) unless the input said float64.
func conformNumbers(out, in any) any {
	switch o := out.(type) {
	case int:
		switch in.(type) {
		case float64:
			return float64(o)
		case int64:
			return int64(o)
		}
	case map[string]any:
		if im, ok := in.(map[string]any); ok {
			for k, v := range o {
				if iv, ok := im[k]; ok {
					o[k] = conformNumbers(v, iv)
				}
			}
		}
	case []any:
		if il, ok := in.([]any); ok && len(il) > 0 {
			for i, v := range o {
				hint := il[0]
				if i < len(il) {
					hint = il[i]
				}
				o[i] = conformNumbers(v, hint)
			}
		}
	}
	return out
}

// luaMessage strips the chunk position prefix that error() adds.
func luaMessage(err *lua.ApiError) string {
	msg := err.Object.String()
	if i := strings.Index(msg, ": "); i > 0 && strings.Contains(msg[:i], ":") {
		return msg[i+2:]
	}
	return msg
}

func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	for _, name := range []string{"loadfile", "dofile", "load", "loadstring", "print", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			L.RawSetInt(tbl, i+1, goToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, k, goToLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LString:
		return string(val)
	case lua.LNumber:
		f := float64(val)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int(f)
		}
		return f
	case *lua.LTable:
		n := val.MaxN()
		count := 0
		val.ForEach(func(lua.LValue, lua.LValue) { count++ })
		if n > 0 && n == count {
			list := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				list = append(list, luaToGo(val.RawGetInt(i)))
			}
			return list
		}
		record := make(map[string]any, count)
		val.ForEach(func(k, item lua.LValue) {
			record[k.String()] = luaToGo(item)
		})
		return record
	default:
		return nil
	}
}

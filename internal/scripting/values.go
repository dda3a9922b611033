package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/tsom/server/internal/entity"
)

// valueToLua maps a property value to Lua: booleans, numbers and strings
// directly, vector kinds as arrays {x, y, ...}.
func valueToLua(L *lua.LState, v entity.Value) lua.LValue {
	switch x := v.(type) {
	case entity.Bool:
		return lua.LBool(x)
	case entity.String:
		return lua.LString(x)
	case entity.Float:
		return lua.LNumber(x)
	case entity.Integer:
		return lua.LNumber(x)
	}
	comps := entity.Floats(v)
	if comps == nil {
		return lua.LNil
	}
	t := L.CreateTable(len(comps), 0)
	for _, c := range comps {
		t.Append(lua.LNumber(c))
	}
	return t
}

// luaToValue converts a Lua value to the declared property type. Any shape
// that does not fit is an error.
func luaToValue(t entity.PropertyType, lv lua.LValue) (entity.Value, error) {
	var raw any
	switch x := lv.(type) {
	case lua.LBool:
		raw = bool(x)
	case lua.LNumber:
		raw = float64(x)
	case lua.LString:
		raw = string(x)
	case *lua.LTable:
		n := x.Len()
		list := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			num, ok := x.RawGetInt(i).(lua.LNumber)
			if !ok {
				return nil, fmt.Errorf("%w: %s component %d is %s", entity.ErrValueShape, t, i, x.RawGetInt(i).Type())
			}
			list = append(list, float64(num))
		}
		raw = list
	default:
		return nil, fmt.Errorf("%w: %s cannot be built from lua %s", entity.ErrValueShape, t, lv.Type())
	}
	return entity.Convert(t, raw)
}

// goToLua converts hook arguments.
func goToLua(L *lua.LState, a any) (lua.LValue, error) {
	switch x := a.(type) {
	case nil:
		return lua.LNil, nil
	case lua.LValue:
		return x, nil
	case entity.Value:
		return valueToLua(L, x), nil
	case string:
		return lua.LString(x), nil
	case bool:
		return lua.LBool(x), nil
	case int:
		return lua.LNumber(x), nil
	case int64:
		return lua.LNumber(x), nil
	case uint32:
		return lua.LNumber(x), nil
	case uint64:
		return lua.LNumber(x), nil
	case float32:
		return lua.LNumber(x), nil
	case float64:
		return lua.LNumber(x), nil
	}
	return nil, fmt.Errorf("unsupported type %T", a)
}

package scripting

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/tsom/server/internal/core/ecs"
	"github.com/tsom/server/internal/entity"
)

const entityTypeName = "tsom.entity"

// entityRef backs the userdata handed to Lua. It is only valid during the
// callback it was created for; a script that keeps it around gets an error
// on use instead of touching a recycled entity.
type entityRef struct {
	id   ecs.EntityID
	inst *entity.ClassInstance
}

func (r *entityRef) expire() { r.inst = nil }

func registerEntityType(L *lua.LState) {
	mt := L.NewTypeMetatable(entityTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"get":   entityGet,
		"set":   entitySet,
		"class": entityClass,
		"id":    entityID,
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		r := checkEntity(L)
		L.Push(lua.LString("entity(" + r.inst.Class().Name() + " " + r.id.String() + ")"))
		return 1
	}))
}

func newEntityHandle(L *lua.LState, id ecs.EntityID, inst *entity.ClassInstance) (*lua.LUserData, *entityRef) {
	ref := &entityRef{id: id, inst: inst}
	ud := L.NewUserData()
	ud.Value = ref
	L.SetMetatable(ud, L.GetTypeMetatable(entityTypeName))
	return ud, ref
}

func checkEntity(L *lua.LState) *entityRef {
	ud := L.CheckUserData(1)
	r, ok := ud.Value.(*entityRef)
	if !ok {
		L.ArgError(1, "entity expected")
		return nil
	}
	if r.inst == nil {
		L.RaiseError("entity %s: handle expired", r.id)
		return nil
	}
	return r
}

// e:get(name)
func entityGet(L *lua.LState) int {
	r := checkEntity(L)
	i, err := r.inst.Lookup(L.CheckString(2))
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(valueToLua(L, r.inst.Value(i)))
	return 1
}

// e:set(name, value)
func entitySet(L *lua.LState) int {
	r := checkEntity(L)
	i, err := r.inst.Lookup(L.CheckString(2))
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	v, err := luaToValue(r.inst.Class().Property(i).Type, L.CheckAny(3))
	if err == nil {
		err = r.inst.SetValue(i, v)
	}
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

func entityClass(L *lua.LState) int {
	r := checkEntity(L)
	L.Push(lua.LString(r.inst.Class().Name()))
	return 1
}

func entityID(L *lua.LState) int {
	r := checkEntity(L)
	L.Push(lua.LString(r.id.String()))
	return 1
}

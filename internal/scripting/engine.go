package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/tsom/server/internal/core/ecs"
	"github.com/tsom/server/internal/entity"
)

// Engine wraps a single gopher-lua VM. Single-goroutine access only (game
// loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// scriptDirs are loaded in order; later files may call into earlier ones.
var scriptDirs = []string{"core", "entity", "world"}

// NewEngine creates a Lua engine and loads every script under scriptsDir.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)
	for _, sub := range scriptDirs {
		if err := e.loadDir(filepath.Join(scriptsDir, sub)); err != nil {
			e.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	return e, nil
}

func newEngine(log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	vm.SetGlobal("log", vm.NewFunction(e.luaLog))
	registerEntityType(vm)
	return e
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString runs a chunk of Lua source. name labels errors.
func (e *Engine) LoadString(name, src string) error {
	fn, err := e.vm.Load(strings.NewReader(src), name)
	if err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	e.vm.Push(fn)
	if err := e.vm.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

func (e *Engine) function(name string) (*lua.LFunction, bool) {
	fn, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return fn, ok
}

// InitFunc returns an entity init callback backed by the Lua global name.
// The function receives an entity handle valid for the duration of the call.
func (e *Engine) InitFunc(name string) (entity.InitFunc, error) {
	fn, ok := e.function(name)
	if !ok {
		return nil, fmt.Errorf("lua function %s not found", name)
	}
	return func(id ecs.EntityID, inst *entity.ClassInstance) error {
		ud, ref := newEntityHandle(e.vm, id, inst)
		defer ref.expire()
		if err := e.vm.CallByParam(lua.P{
			Fn:      fn,
			NRet:    0,
			Protect: true,
		}, ud); err != nil {
			return fmt.Errorf("lua %s: %w", name, err)
		}
		return nil
	}, nil
}

// CallHook calls the Lua global name with args if it is defined. Missing
// hooks are not an error.
func (e *Engine) CallHook(name string, args ...any) error {
	fn, ok := e.function(name)
	if !ok {
		return nil
	}
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		v, err := goToLua(e.vm, a)
		if err != nil {
			return fmt.Errorf("lua %s arg %d: %w", name, i, err)
		}
		largs[i] = v
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, largs...); err != nil {
		return fmt.Errorf("lua %s: %w", name, err)
	}
	return nil
}

// OnPlayerJoin runs the on_player_join hook, logging failures.
func (e *Engine) OnPlayerJoin(name string, id ecs.EntityID) {
	if err := e.CallHook("on_player_join", name, id.String()); err != nil {
		e.log.Error("lua hook failed", zap.String("hook", "on_player_join"), zap.Error(err))
	}
}

// OnPlayerLeave runs the on_player_leave hook, logging failures.
func (e *Engine) OnPlayerLeave(name string) {
	if err := e.CallHook("on_player_leave", name); err != nil {
		e.log.Error("lua hook failed", zap.String("hook", "on_player_leave"), zap.Error(err))
	}
}

// luaLog is exposed to scripts as log(msg, ...).
func (e *Engine) luaLog(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	e.log.Info("lua: " + strings.Join(parts, " "))
	return 0
}

func (e *Engine) Close() {
	e.vm.Close()
}

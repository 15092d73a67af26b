package script

import (
	lua "github.com/yuin/gopher-lua"
)

// loadModule builds the mongo module table. Registered with PreloadModule,
// so scripts pull it in with require("mongo").
func (e *Engine) loadModule(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"eval":     e.luaEval,
		"use":      e.luaUse,
		"database": e.luaDatabase,
	})
	L.Push(mod)
	return 1
}

// luaEval implements mongo.eval(script) -> (result, err).
func (e *Engine) luaEval(L *lua.LState) int {
	src := L.CheckString(1)

	out, err := e.shell.Execute(e.runContext(), src)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	L.Push(lua.LString(out))
	return 1
}

// luaUse implements mongo.use(name) -> (result, err).
func (e *Engine) luaUse(L *lua.LState) int {
	name := L.CheckString(1)

	out, err := e.shell.UseDatabase(e.runContext(), name)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	e.setDatabase(name)
	L.Push(lua.LString(out))
	return 1
}

// luaDatabase implements mongo.database() -> name.
func (e *Engine) luaDatabase(L *lua.LState) int {
	L.Push(lua.LString(e.Database()))
	return 1
}

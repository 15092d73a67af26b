// Package script runs Lua automation scripts against a shell session.
//
// This package wraps the gopher-lua interpreter to provide:
//   - A single-goroutine executor for the non-thread-safe LState
//   - The mongo module exposed to scripts via require
//   - Script errors carrying the interpreter traceback
//
// # Engine
//
// The Engine owns one interpreter and serializes all access to it:
//
//	eng := script.New(session)
//	defer eng.Close()
//
//	if err := eng.RunFile(ctx, "migrate.lua"); err != nil {
//	    log.Fatal(err)
//	}
//
// # The mongo module
//
// Scripts talk to the server through the mongo module:
//
//	local mongo = require("mongo")
//
//	mongo.use("inventory")
//	local out, err = mongo.eval("db.items.count()")
//	if err then
//	    error(err)
//	end
//	print(out)
//
// mongo.eval and mongo.use return (result, err) in the usual Lua style;
// mongo.database() returns the name of the database in use.
//
// The io and os libraries are not opened. Scripts interact with the outside
// world through the mongo module only.
package script

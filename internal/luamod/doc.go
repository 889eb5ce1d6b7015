// Package luamod loads client modules written in Lua.
//
// A module file runs once per load with a global table named mud:
//
//	mud.trigger([[^(\w+) arrives\.$]], function(m, ctx) ctx:send("greet " .. m[1], true) end)
//	mud.alias("^k (.+)$", function(m, ctx) ctx:send("kill " .. m[1], true); ctx:no_send() end, {sequence = 1})
//	mud.gmcp("Char.Vitals", function(pkg, data) mud.set_state("hp", data.hp) end)
//	mud.macro("f5", function() mud.send("score", true) end)
//	mud.require("combat.lua")
//
// Patterns are .NET/Perl style regular expressions (see realm.NewMatcher),
// not Lua patterns. Handlers run on the session loop with a time limit;
// mud.interrupt() aborts processing of the current line or command.
package luamod

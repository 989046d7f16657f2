// Package sandbox runs JavaScript with a host-supplied global scope.
//
// A Sandbox wraps a Store, a plain key/value mapping. Guest code sees the
// Store's entries as its globals, and every global it assigns, declares or
// deletes goes to the Store. Built-ins such as Object, Array and JSON remain
// reachable through the context's intrinsic global object but never show up
// in enumeration. Each Sandbox owns exactly one Context; the Context is torn
// down once the Sandbox handle is collected.
//
// Scripts are compiled once with Compile and may run in any number of
// contexts. Runs never time out on their own.
//
// This is scope isolation, not a security boundary. Guest code has full
// access to the engine's built-ins and to whatever the host puts in the
// Store, and nothing here defends against code attacking the engine itself.
//
// Usage:
//
//	engine := sandbox.NewEngine(logger)
//	sb, err := engine.NewSandbox(map[string]any{"answer": 42})
//	v, err := sb.Run("answer + 1")
//	script, err := sandbox.Compile("x = answer * 2", "double.js")
//	_, err = script.RunInContext(sb.Context())
package sandbox

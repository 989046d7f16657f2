package sandbox

import (
	"errors"
	"runtime"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
)

// DefaultFilename names scripts compiled without an explicit filename.
const DefaultFilename = "script.<anonymous>"

// Script is compiled source. It is not tied to any Context and may be run
// in many contexts, from any goroutine, any number of times.
type Script struct {
	prg      *goja.Program
	filename string
}

// Compile parses and compiles code. At most one filename may be given.
func Compile(code string, filename ...string) (*Script, error) {
	name, err := scriptName("compile", filename, DefaultFilename)
	if err != nil {
		return nil, err
	}

	prog, err := parser.ParseFile(nil, name, code, 0)
	if err != nil {
		return nil, newCompileError(name, code, err)
	}

	prg, err := goja.CompileAST(prog, false)
	if err != nil {
		return nil, newCompileError(name, code, err)
	}

	return &Script{prg: prg, filename: name}, nil
}

// Filename returns the origin name the script was compiled with.
func (s *Script) Filename() string {
	return s.filename
}

// RunInContext runs the script with target's global scope. target must be
// a *Context or the *Sandbox owning one.
func (s *Script) RunInContext(target any) (goja.Value, error) {
	if target == nil {
		return nil, &ArgumentError{Op: "runInContext", Message: "must supply a context"}
	}
	if !InstanceOf(target) {
		return nil, &TypeError{Message: "first argument must be a Context"}
	}

	var c *Context
	switch t := target.(type) {
	case *Context:
		c = t
	case *Sandbox:
		c = t.ctx
	}

	v, err := c.run(s)
	runtime.KeepAlive(target)
	return v, err
}

func scriptName(op string, filename []string, def string) (string, error) {
	switch len(filename) {
	case 0:
		return def, nil
	case 1:
		if filename[0] == "" {
			return def, nil
		}
		return filename[0], nil
	default:
		return "", &ArgumentError{Op: op, Message: "expected at most one filename"}
	}
}

func newCompileError(name, code string, err error) error {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		return &CompileError{
			Message:    first.Message,
			Filename:   name,
			Line:       first.Position.Line,
			Column:     first.Position.Column,
			SourceLine: sourceLine(code, first.Position.Line),
		}
	}

	var perr *parser.Error
	if errors.As(err, &perr) {
		return &CompileError{
			Message:    perr.Message,
			Filename:   name,
			Line:       perr.Position.Line,
			Column:     perr.Position.Column,
			SourceLine: sourceLine(code, perr.Position.Line),
		}
	}

	var serr *goja.CompilerSyntaxError
	if errors.As(err, &serr) {
		ce := &CompileError{Message: serr.Message, Filename: name}
		if serr.File != nil {
			pos := serr.File.Position(serr.Offset)
			ce.Line, ce.Column = pos.Line, pos.Column
			ce.SourceLine = sourceLine(code, pos.Line)
		}
		return ce
	}

	return &CompileError{Message: err.Error(), Filename: name}
}

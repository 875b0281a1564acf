// Package js runs time event callbacks written in JavaScript on goja.
//
// A script is a CommonJS-style file that exports an onTimeEvent function:
//
//	exports.onTimeEvent = function (event) {
//	  log("fired " + event.name + " at " + event.ts_event);
//	};
package js

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/coachpo/backclock/errs"
)

const (
	component = "script"

	// EntryPoint is the export invoked for every fired time event.
	EntryPoint = "onTimeEvent"
)

// Module is a compiled script ready to be instantiated.
type Module struct {
	Name    string
	Path    string
	Hash    string
	Program *goja.Program
}

// Compile reads and compiles the script at path.
func Compile(path string) (*Module, error) {
	clean := filepath.Clean(strings.TrimSpace(path))
	// #nosec G304 -- script paths come from the operator's run config.
	source, err := os.ReadFile(clean)
	if err != nil {
		return nil, errs.New(component, errs.CodeScript,
			errs.WithMessage("read script"),
			errs.WithField("path", clean),
			errs.WithCause(err),
		)
	}
	module, err := CompileSource(strings.TrimSuffix(filepath.Base(clean), filepath.Ext(clean)), string(source))
	if err != nil {
		return nil, err
	}
	module.Path = clean
	return module, nil
}

// CompileSource compiles source under name and checks that it exports the entry point.
func CompileSource(name, source string) (*Module, error) {
	prog, err := goja.Compile(name, source, true)
	if err != nil {
		return nil, errs.New(component, errs.CodeScript,
			errs.WithMessage("compile script"),
			errs.WithField("script", name),
			errs.WithCause(err),
		)
	}

	// Run once in a throwaway runtime so a missing export fails at load time.
	if _, err := instantiate(goja.New(), prog, nil, name); err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(source))
	return &Module{
		Name:    name,
		Path:    "",
		Hash:    hex.EncodeToString(sum[:]),
		Program: prog,
	}, nil
}

func instantiate(rt *goja.Runtime, program *goja.Program, logFn func(goja.FunctionCall) goja.Value, name string) (goja.Callable, error) {
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	module := rt.NewObject()
	exports := rt.NewObject()
	if logFn == nil {
		logFn = func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	}
	console := rt.NewObject()
	for _, key := range []string{"log", "info", "warn", "error"} {
		if err := console.Set(key, logFn); err != nil {
			return nil, scriptInit(name, err)
		}
	}
	if err := module.Set("exports", exports); err != nil {
		return nil, scriptInit(name, err)
	}
	globals := []struct {
		key   string
		value any
	}{
		{"module", module},
		{"exports", exports},
		{"log", logFn},
		{"console", console},
	}
	for _, g := range globals {
		if err := rt.Set(g.key, g.value); err != nil {
			return nil, scriptInit(name, err)
		}
	}

	if _, err := rt.RunProgram(program); err != nil {
		return nil, errs.New(component, errs.CodeScript,
			errs.WithMessage("run script"),
			errs.WithField("script", name),
			errs.WithCause(err),
		)
	}

	object := module.Get("exports").ToObject(rt)
	entry, ok := goja.AssertFunction(object.Get(EntryPoint))
	if !ok {
		return nil, errs.New(component, errs.CodeScript,
			errs.WithMessage(fmt.Sprintf("script must export a %s function", EntryPoint)),
			errs.WithField("script", name),
		)
	}
	return entry, nil
}

func scriptInit(name string, err error) error {
	return errs.New(component, errs.CodeScript,
		errs.WithMessage("initialise runtime"),
		errs.WithField("script", name),
		errs.WithCause(err),
	)
}

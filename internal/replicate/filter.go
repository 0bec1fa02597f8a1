package replicate

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/todosync/internal/doc"
)

// filterEnv is the environment a filter expression sees.
type filterEnv struct {
	ID        string `expr:"id"`
	Title     string `expr:"title"`
	Completed bool   `expr:"completed"`
	Deleted   bool   `expr:"deleted"`
}

// Filter selects which local records are pushed. Records it rejects are
// skipped, and the push checkpoint still moves past them.
type Filter struct {
	source  string
	program *vm.Program
}

// CompileFilter compiles a boolean expression over id, title, completed and
// deleted, for example:
//
//	!deleted && title startsWith "work:"
//
// An empty source yields a nil Filter, which matches everything.
func CompileFilter(source string) (*Filter, error) {
	if source == "" {
		return nil, nil
	}
	program, err := expr.Compile(source, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", source, err)
	}
	return &Filter{source: source, program: program}, nil
}

// Match reports whether rec passes the filter.
func (f *Filter) Match(rec doc.Record) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, err := vm.Run(f.program, filterEnv{
		ID:        rec.ID,
		Title:     rec.Title,
		Completed: rec.Completed,
		Deleted:   rec.Deleted,
	})
	if err != nil {
		return false, fmt.Errorf("run filter %q: %w", f.source, err)
	}
	return out.(bool), nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.source
}

// Package policy decides which inbound records a server accepts.
//
// A policy is a CUE file defining #Todo. Each record is encoded as a CUE
// value, unified with #Todo, and must validate as concrete. Records that do
// not are denied individually; the rest of a batch is unaffected.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/todosync/internal/doc"
)

//go:embed todo.cue
var defaultSchema []byte

// DefinitionPath is the definition every policy file must provide.
const DefinitionPath = "#Todo"

// ErrDenied matches every *Violation.
var ErrDenied = errors.New("denied by policy")

// Violation explains why a record was denied.
type Violation struct {
	ID      string
	Message string
	Pos     token.Pos
}

func (e *Violation) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s:%d:%d: %s", e.ID, e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.ID, e.Message)
}

// Is makes errors.Is(err, ErrDenied) true for any Violation.
func (e *Violation) Is(target error) bool {
	return target == ErrDenied
}

// Policy checks records against a compiled #Todo definition.
//
// cue.Context is not safe for concurrent use, so Check serializes callers.
type Policy struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
	name   string
}

// todoValue is the CUE-facing encoding of a record.
type todoValue struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Deleted   bool   `json:"deleted"`
}

// Default returns the built-in policy.
func Default() (*Policy, error) {
	return Compile("todo.cue", defaultSchema)
}

// Load compiles the policy file at path.
func Load(path string) (*Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Compile(path, src)
}

// Compile builds a policy from CUE source. name is used in positions.
func Compile(name string, src []byte) (*Policy, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile policy: %w", firstError(err))
	}

	schema := v.LookupPath(cue.ParsePath(DefinitionPath))
	if !schema.Exists() {
		return nil, fmt.Errorf("compile policy %s: %s not defined", name, DefinitionPath)
	}
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile policy: %w", firstError(err))
	}

	return &Policy{ctx: ctx, schema: schema, name: name}, nil
}

// Name returns the file name the policy was compiled from.
func (p *Policy) Name() string {
	return p.name
}

// Check returns a *Violation if rec does not satisfy #Todo.
func (p *Policy) Check(rec doc.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.ctx.Encode(todoValue{
		ID:        rec.ID,
		Title:     rec.Title,
		Completed: rec.Completed,
		Deleted:   rec.Deleted,
	})
	unified := p.schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return violation(rec.ID, err)
	}
	return nil
}

// violation keeps the first CUE error and its position.
func violation(id string, err error) *Violation {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Violation{ID: id, Message: err.Error()}
	}
	first := errs[0]
	v := &Violation{ID: id, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		v.Pos = positions[0]
	}
	return v
}

func firstError(err error) error {
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		return errs[0]
	}
	return err
}

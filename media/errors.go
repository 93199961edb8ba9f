package media

import "fmt"

type Kind int

const (
	KindValidation Kind = iota + 1
	KindStorage
	KindMirror
	KindCatalog
)

var kindName = map[Kind]string{
	KindValidation: "validation",
	KindStorage:    "storage",
	KindMirror:     "mirror",
	KindCatalog:    "catalog",
}

func (k Kind) String() string {
	if name, ok := kindName[k]; ok {
		return name
	}

	return "unknown"
}

// Failure is the error type returned by pipeline operations. Kind decides how
// the HTTP boundary reports it; Err carries the underlying cause.
type Failure struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	if f.Op == "" {
		return f.Err.Error()
	}

	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func Fail(kind Kind, op string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Err: err}
}

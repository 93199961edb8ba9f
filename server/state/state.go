package state

import (
	"context"
	"os"

	"github.com/solusnoir/solus/catalog"
	"github.com/solusnoir/solus/config"
	"github.com/solusnoir/solus/intake"
	"github.com/solusnoir/solus/media"
	"github.com/solusnoir/solus/server/auth"
)

type Intake interface {
	Submit(ctx context.Context, sub intake.Submission) (*intake.Receipt, error)
}

type Catalog interface {
	Build(ctx context.Context) (catalog.View, error)
}

type Files interface {
	Open(filename string) (*os.File, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type SolusState struct {
	Cfg        *config.Config
	Allowed    *media.AllowSet
	Verifier   *auth.Verifier
	Intake     Intake
	Catalog    Catalog
	Files      Files
	Completion Completer
}

// Package intake drives a single upload from the request through local
// storage to the mirror hand-off.
package intake

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/solusnoir/solus/media"
	"github.com/solusnoir/solus/server/util"
	"github.com/solusnoir/solus/storage/local"
	"github.com/solusnoir/solus/storage/mirror"
)

var (
	ErrNoFilePart     = errors.New("No file part")
	ErrNoFileSelected = errors.New("No file selected")
	ErrTypeNotAllowed = errors.New("File type not allowed")
)

type State int

const (
	StateReceived State = iota
	StateValidated
	StateStored
	StateMirrorAttempted
	StateRedirected
)

var stateName = map[State]string{
	StateReceived:        "received",
	StateValidated:       "validated",
	StateStored:          "stored",
	StateMirrorAttempted: "mirror-attempted",
	StateRedirected:      "redirected",
}

func (s State) String() string {
	return stateName[s]
}

// Submission is one uploaded file. A nil Body means the request carried no
// file part at all.
type Submission struct {
	Filename string
	Body     io.Reader
}

type Receipt struct {
	File       media.MediaFile
	StoredPath string
	Mirror     mirror.Outcome
	State      State
}

type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
}

type Dispatcher interface {
	Submit(ctx context.Context, job mirror.Job) mirror.Outcome
}

type Orchestrator struct {
	store      Store
	allowed    *media.AllowSet
	dispatcher Dispatcher
	logger     util.Logger
}

func NewOrchestrator(store Store, allowed *media.AllowSet, dispatcher Dispatcher, logger util.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}

	return &Orchestrator{
		store:      store,
		allowed:    allowed,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Submit validates and stores the file, then hands it to the mirror
// dispatcher. Once the file is stored Submit succeeds regardless of what the
// mirror does.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	receipt := &Receipt{State: StateReceived}

	if err := o.validate(sub); err != nil {
		return receipt, err
	}
	receipt.State = StateValidated
	receipt.File = media.NewMediaFile(sub.Filename)

	stored, err := o.store.Save(ctx, sub.Filename, sub.Body)
	if err != nil {
		if errors.Is(err, local.ErrInvalidName) {
			return receipt, media.Fail(media.KindValidation, "", err)
		}
		o.errorf(ctx, "could not store %q: %v", sub.Filename, err)
		return receipt, media.Fail(media.KindStorage, "save", err)
	}
	receipt.State = StateStored
	receipt.StoredPath = stored

	o.infof(ctx, "stored %q as %s", sub.Filename, receipt.File.Category)

	receipt.Mirror = o.dispatcher.Submit(ctx, mirror.Job{
		Filename:   sub.Filename,
		StoredPath: stored,
		Category:   receipt.File.Category,
	})
	receipt.State = StateMirrorAttempted

	return receipt, nil
}

// infof and errorf prefer the request logger so lines carry the request id.
func (o *Orchestrator) infof(ctx context.Context, format string, v ...any) {
	if rl := util.FromContext(ctx); rl != nil {
		rl.Infof(format, v...)
		return
	}
	o.logger.Printf("INFO: "+format, v...)
}

func (o *Orchestrator) errorf(ctx context.Context, format string, v ...any) {
	if rl := util.FromContext(ctx); rl != nil {
		rl.Errorf(format, v...)
		return
	}
	o.logger.Printf("ERROR: "+format, v...)
}

func (o *Orchestrator) validate(sub Submission) error {
	switch {
	case sub.Body == nil:
		return media.Fail(media.KindValidation, "", ErrNoFilePart)
	case sub.Filename == "":
		return media.Fail(media.KindValidation, "", ErrNoFileSelected)
	case !o.allowed.IsAllowed(sub.Filename):
		return media.Fail(media.KindValidation, "", ErrTypeNotAllowed)
	}

	return nil
}

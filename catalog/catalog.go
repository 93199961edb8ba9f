// Package catalog assembles the portfolio view from the remote beats bucket
// and the local upload directory.
package catalog

import (
	"context"
	"log"
	"time"

	"github.com/gosimple/slug"
	"golang.org/x/sync/errgroup"

	"github.com/solusnoir/solus/media"
	"github.com/solusnoir/solus/server/util"
	"github.com/solusnoir/solus/storage/ledger"
	"github.com/solusnoir/solus/storage/mirror"
)

// Entry is a local file shown in the "new" section.
type Entry struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	URL      string         `json:"url"`
	Category media.Category `json:"category"`
	Location media.Location `json:"location"`
}

// View is the categorized portfolio. All three sections are always present.
type View struct {
	Beats    []mirror.RemoteObject `json:"beats"`
	Demos    []mirror.RemoteObject `json:"demos"`
	New      []Entry               `json:"new"`
	Degraded bool                  `json:"degraded,omitempty"`
}

// EmptyView returns a view with every section present and empty.
func EmptyView() View {
	return View{
		Beats: []mirror.RemoteObject{},
		Demos: []mirror.RemoteObject{},
		New:   []Entry{},
	}
}

type LocalLister interface {
	List(ctx context.Context) ([]string, error)
	URL(filename string) string
}

type Options struct {
	PageSize    int
	ListTimeout time.Duration
	Logger      util.Logger
}

type Builder struct {
	remote  mirror.Mirror
	local   LocalLister
	ledger  ledger.Ledger
	allowed *media.AllowSet
	opts    Options
	logger  util.Logger
}

func NewBuilder(remote mirror.Mirror, local LocalLister, l ledger.Ledger, allowed *media.AllowSet, opts Options) *Builder {
	if l == nil {
		l = ledger.NoopLedger{}
	}

	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Builder{
		remote:  remote,
		local:   local,
		ledger:  l,
		allowed: allowed,
		opts:    opts,
		logger:  logger,
	}
}

// Build reads current remote and local state. When either listing fails the
// whole view is empty and marked degraded; the error is logged and returned
// alongside it. A ledger failure only loses the mirrored markers.
func (b *Builder) Build(ctx context.Context) (View, error) {
	var (
		beats    []mirror.RemoteObject
		names    []string
		mirrored map[string]ledger.Entry
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lctx, cancel := b.listContext(gctx)
		defer cancel()

		objects, err := b.remote.List(lctx, mirror.BucketBeats, b.opts.PageSize)
		if err != nil {
			return media.Fail(media.KindCatalog, "list beats", err)
		}
		beats = objects
		return nil
	})

	g.Go(func() error {
		list, err := b.local.List(gctx)
		if err != nil {
			return media.Fail(media.KindCatalog, "list uploads", err)
		}
		names = list
		return nil
	})

	g.Go(func() error {
		entries, err := b.ledger.Mirrored(gctx)
		if err != nil {
			b.logger.Printf("ERROR: catalog could not read mirror ledger: %v", err)
			return nil
		}
		mirrored = entries
		return nil
	})

	if err := g.Wait(); err != nil {
		b.logger.Printf("ERROR: catalog unavailable: %v", err)
		view := EmptyView()
		view.Degraded = true
		return view, err
	}

	view := EmptyView()
	if beats != nil {
		view.Beats = beats
	}

	for _, name := range names {
		if !b.allowed.IsAllowed(name) {
			continue
		}

		f := media.NewMediaFile(name)
		if _, ok := mirrored[name]; ok {
			f.Location = media.LocationBoth
		}

		view.New = append(view.New, Entry{
			ID:       slug.Make(name),
			Name:     f.Name,
			URL:      b.local.URL(name),
			Category: f.Category,
			Location: f.Location,
		})
	}

	return view, nil
}

func (b *Builder) listContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.opts.ListTimeout > 0 {
		return context.WithTimeout(ctx, b.opts.ListTimeout)
	}

	return context.WithCancel(ctx)
}

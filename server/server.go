package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/solusnoir/solus/catalog"
	"github.com/solusnoir/solus/completion"
	"github.com/solusnoir/solus/config"
	"github.com/solusnoir/solus/intake"
	"github.com/solusnoir/solus/media"
	"github.com/solusnoir/solus/server/auth"
	completionhandler "github.com/solusnoir/solus/server/handler/completion"
	"github.com/solusnoir/solus/server/handler/files"
	"github.com/solusnoir/solus/server/handler/home"
	"github.com/solusnoir/solus/server/handler/portfolio"
	"github.com/solusnoir/solus/server/handler/upload"
	"github.com/solusnoir/solus/server/middleware"
	"github.com/solusnoir/solus/server/state"
	"github.com/solusnoir/solus/storage/ledger"
	"github.com/solusnoir/solus/storage/local"
	"github.com/solusnoir/solus/storage/mirror"
	mirrorfactory "github.com/solusnoir/solus/storage/mirror/factory"
)

const (
	uploadsURL      = "/uploads/"
	shutdownTimeout = 30 * time.Second
)

// services holds everything that needs closing when the server stops.
type services struct {
	state      *state.SolusState
	store      *local.StoreImpl
	ledger     ledger.Ledger
	dispatcher *mirror.Dispatcher
}

// StartServer runs until SIGINT or SIGTERM.
func StartServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return Run(ctx, cfg)
}

// Run serves HTTP until ctx is done, then shuts the server down and drains
// queued mirror jobs.
func Run(ctx context.Context, cfg *config.Config) error {
	rt, err := initialize(cfg)
	if err != nil {
		return err
	}

	bindAddress := fmt.Sprintf("%v:%v", cfg.Server.Address, cfg.Server.Port)
	ln, err := net.Listen("tcp", bindAddress)
	if err != nil {
		cleanup(rt)
		return fmt.Errorf("failed to listen on %q: %w", bindAddress, err)
	}
	if cfg.Server.Limits.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.Limits.MaxConnections)
	}

	srv := &http.Server{
		Handler:           NewRouter(rt.state),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("serving http requests on %q", ln.Addr())
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = rt.dispatcher.Close(drainCtx)
		cleanup(rt)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down http server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}

	if err := rt.dispatcher.Close(shutdownCtx); err != nil {
		log.Printf("mirror queue not drained: %v", err)
	}

	cleanup(rt)
	log.Println("shutdown complete")
	return nil
}

// NewRouter maps every route onto its handler behind request logging.
func NewRouter(st *state.SolusState) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", home.HandleHome())
	mux.Handle("GET /healthz", home.HandleHealth())
	mux.Handle("GET /upload", upload.HandleUploadForm(st))
	mux.Handle("POST /upload", middleware.ValidateTokenMiddleware(st.Verifier, true, upload.HandleUpload(st)))
	mux.Handle("GET /portfolio", portfolio.HandlePortfolio(st))
	mux.Handle("GET "+uploadsURL+"{filename}", files.HandleFile(st))
	mux.Handle("POST /generate-completion", middleware.ValidateTokenMiddleware(st.Verifier, false, completionhandler.HandleCompletion(st)))
	mux.Handle("/", home.HandleNotFound())

	return middleware.RequestLogging(log.Default(), mux)
}

func initialize(cfg *config.Config) (*services, error) {
	store, err := initializeLocalStore(&cfg.Media)
	if err != nil {
		return nil, err
	}

	remote, err := initializeMirror(&cfg.Mirror)
	if err != nil {
		store.Close()
		return nil, err
	}

	l, err := initializeLedger(&cfg.Ledger)
	if err != nil {
		store.Close()
		return nil, err
	}

	allowed := media.NewAllowSet(cfg.Media.AllowedExtensions...)

	dispatcher := mirror.NewDispatcher(remote, l, mirror.DispatcherOptions{
		Workers:    cfg.Mirror.Queue.Workers,
		QueueSize:  cfg.Mirror.Queue.Size,
		Timeout:    cfg.Mirror.Timeout,
		MaxRetries: cfg.Mirror.Queue.MaxRetries,
		Backoff:    cfg.Mirror.Queue.Backoff,
	})

	builder := catalog.NewBuilder(remote, store, l, allowed, catalog.Options{
		PageSize:    cfg.Catalog.PageSize,
		ListTimeout: cfg.Catalog.ListTimeout,
	})

	st := &state.SolusState{
		Cfg:        cfg,
		Allowed:    allowed,
		Verifier:   auth.NewVerifier(cfg, nil),
		Intake:     intake.NewOrchestrator(store, allowed, dispatcher, nil),
		Catalog:    builder,
		Files:      store,
		Completion: completion.NewClient(cfg.Completion, nil),
	}

	if cfg.Completion.ApiKey == "" {
		log.Println("warning: no completion API key configured, completion requests will fail")
	}

	return &services{state: st, store: store, ledger: l, dispatcher: dispatcher}, nil
}

func initializeLocalStore(cfg *config.Media) (*local.StoreImpl, error) {
	store, err := local.NewStore(cfg.Path, uploadsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local store: %w", err)
	}

	return store, nil
}

func initializeMirror(cfg *config.Mirror) (mirror.Mirror, error) {
	m, err := mirrorfactory.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mirror: %w", err)
	}

	return m, nil
}

func initializeLedger(cfg *config.Ledger) (ledger.Ledger, error) {
	l, err := ledger.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mirror ledger: %w", err)
	}

	return l, nil
}

func cleanup(rt *services) {
	if rt == nil {
		return
	}

	if rt.ledger != nil {
		if err := rt.ledger.Close(); err != nil {
			log.Printf("error closing mirror ledger: %v", err)
		}
	}

	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			log.Printf("error closing local store: %v", err)
		}
	}
}

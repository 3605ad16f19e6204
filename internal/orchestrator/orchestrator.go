// Package orchestrator issues the widget's asynchronous external calls.
//
// There is at most one live request per Kind. Issuing a request cancels the
// previous one of the same kind, whose callback then receives
// apperr.ErrSuperseded and nothing else. Callbacks always run on the loop, and
// a result is applied only if its request is still the active one for its
// kind, even if it raced with the cancellation.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-servicearea/internal/apperr"
	"github.com/joeblew999/plat-servicearea/internal/geocode"
	"github.com/joeblew999/plat-servicearea/internal/loop"
	"github.com/joeblew999/plat-servicearea/internal/naservice"
)

// Kind identifies a request slot.
type Kind string

const (
	KindMetadata Kind = "metadata"
	KindSolve    Kind = "solve"
	KindSearch   Kind = "search"
)

// Kinds lists every slot.
var Kinds = []Kind{KindMetadata, KindSolve, KindSearch}

// Service is the network-analysis layer.
type Service interface {
	FetchMetadata(ctx context.Context, url string) (*naservice.Metadata, error)
	Solve(ctx context.Context, md *naservice.Metadata, req naservice.SolveRequest) ([]naservice.Polygon, error)
}

// Geocoder is the search collaborator.
type Geocoder interface {
	Find(ctx context.Context, text string) (*geocode.Candidate, error)
	FindNearest(ctx context.Context, p orb.Point) (*geocode.Candidate, error)
}

// Observer is told about every request outcome.
type Observer interface {
	Issued(kind Kind)
	Superseded(kind Kind)
	Failed(kind Kind, err error)
	Completed(kind Kind, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Issued(Kind) {}
func (nopObserver) Superseded(Kind) {}
func (nopObserver) Failed(Kind, error) {}
func (nopObserver) Completed(Kind, time.Duration) {}

type pending struct {
	id        uint64
	cancel    context.CancelFunc
	supersede func()
}

// Orchestrator owns the request slots. All methods run on the loop.
type Orchestrator struct {
	loop     loop.Loop
	service  Service
	geocoder Geocoder
	observer Observer

	seq   uint64
	slots map[Kind]*pending
	now   func() time.Time
}

// New returns an orchestrator. geocoder may be nil when no search source is configured.
func New(l loop.Loop, service Service, geocoder Geocoder, observer Observer) *Orchestrator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Orchestrator{
		loop:     l,
		service:  service,
		geocoder: geocoder,
		observer: observer,
		slots:    make(map[Kind]*pending),
		now:      time.Now,
	}
}

// CanSearch reports whether a geocoder is configured.
func (o *Orchestrator) CanSearch() bool { return o.geocoder != nil }

// SetGeocoder swaps the search collaborator, cancelling any pending search.
func (o *Orchestrator) SetGeocoder(g Geocoder) {
	o.Cancel(KindSearch)
	o.geocoder = g
}

// Pending reports whether a request of kind is in flight.
func (o *Orchestrator) Pending(kind Kind) bool {
	_, ok := o.slots[kind]
	return ok
}

// FetchMetadata loads the service area layer description.
// Failures arrive as *apperr.ServiceMetadataError.
func (o *Orchestrator) FetchMetadata(url string, done func(*naservice.Metadata, error)) {
	issue(o, KindMetadata, func(ctx context.Context) (*naservice.Metadata, error) {
		md, err := o.service.FetchMetadata(ctx, url)
		if err != nil {
			return nil, &apperr.ServiceMetadataError{URL: url, Err: err}
		}
		return md, nil
	}, done)
}

// Solve computes service area polygons. The metadata layer kind is checked
// before the request is sent. Failures arrive as *apperr.SolveError.
func (o *Orchestrator) Solve(md *naservice.Metadata, req naservice.SolveRequest, done func([]naservice.Polygon, error)) {
	issue(o, KindSolve, func(ctx context.Context) ([]naservice.Polygon, error) {
		if err := md.Validate(); err != nil {
			return nil, &apperr.SolveError{Err: err}
		}
		polys, err := o.service.Solve(ctx, md, req)
		if err != nil {
			return nil, &apperr.SolveError{Err: err}
		}
		return polys, nil
	}, done)
}

// Search resolves free text to one candidate, or nil.
func (o *Orchestrator) Search(text string, done func(*geocode.Candidate, error)) {
	g := o.geocoder
	issue(o, KindSearch, func(ctx context.Context) (*geocode.Candidate, error) {
		if g == nil {
			return nil, nil
		}
		c, err := g.Find(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", text, err)
		}
		return c, nil
	}, done)
}

// Reverse resolves a point to its nearest address, or nil. It shares the
// search slot with Search.
func (o *Orchestrator) Reverse(p orb.Point, done func(*geocode.Candidate, error)) {
	g := o.geocoder
	issue(o, KindSearch, func(ctx context.Context) (*geocode.Candidate, error) {
		if g == nil {
			return nil, nil
		}
		c, err := g.FindNearest(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("reverse geocode: %w", err)
		}
		return c, nil
	}, done)
}

// Cancel aborts the pending request of kind, if any. Its callback receives
// apperr.ErrSuperseded.
func (o *Orchestrator) Cancel(kind Kind) {
	p, ok := o.slots[kind]
	if !ok {
		return
	}
	delete(o.slots, kind)
	p.cancel()
	o.observer.Superseded(kind)
	o.loop.Post(p.supersede)
}

// CancelSearch aborts a pending search or reverse geocode.
func (o *Orchestrator) CancelSearch() { o.Cancel(KindSearch) }

// CancelAll aborts every pending request.
func (o *Orchestrator) CancelAll() {
	for _, k := range Kinds {
		o.Cancel(k)
	}
}

func issue[T any](o *Orchestrator, kind Kind, call func(context.Context) (T, error), done func(T, error)) {
	o.Cancel(kind)

	o.seq++
	id := o.seq
	ctx, cancel := context.WithCancel(context.Background())
	o.slots[kind] = &pending{
		id:     id,
		cancel: cancel,
		supersede: func() {
			var zero T
			done(zero, apperr.ErrSuperseded)
		},
	}
	o.observer.Issued(kind)
	started := o.now()

	go func() {
		v, err := call(ctx)
		o.loop.Post(func() {
			p, ok := o.slots[kind]
			if !ok || p.id != id {
				// Superseded; the callback already got ErrSuperseded.
				return
			}
			delete(o.slots, kind)
			cancel()
			if err != nil {
				o.observer.Failed(kind, err)
				var zero T
				done(zero, err)
				return
			}
			o.observer.Completed(kind, o.now().Sub(started))
			done(v, nil)
		})
	}()
}

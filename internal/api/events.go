package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-servicearea/internal/api/live"
	"github.com/joeblew999/plat-servicearea/internal/params"
	"github.com/joeblew999/plat-servicearea/internal/session"
	"github.com/joeblew999/plat-servicearea/internal/widget"
)

// RegisterEvents registers the Datastar SSE routes.
func (h *APIHandler) RegisterEvents(api huma.API) {
	tags := huma.OperationTags("datastar")
	huma.Get(api, "/api/v1/sessions/{id}/events", h.SessionEvents, tags)
	huma.Post(api, "/api/v1/sessions/{id}/signals", h.SessionSignals, tags)
	huma.Get(api, "/api/v1/events", h.ResourceEvents, tags)
}

// SessionEvents streams map commands and state for one session until the
// client goes away or the session closes.
func (h *APIHandler) SessionEvents(ctx context.Context, input *SessionIDInput) (*huma.StreamResponse, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := live.NewSSE(humaCtx)
			if err := live.Stream(ctx, sse, s.Display(), h.stateRenderer(s)); err != nil {
				sse.Error(err.Error())
			}
		},
	}, nil
}

// SessionSignals applies the form signals of a Datastar action and answers
// with the resulting state.
func (h *APIHandler) SessionSignals(ctx context.Context, input *live.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}

	var st widget.State
	if err := s.Do(func(w *widget.Widget) {
		applySignals(w, signals)
		st = w.State()
	}); err != nil {
		return nil, loopError(err)
	}

	render := h.stateRenderer(s)
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := live.NewSSE(humaCtx)
			if err := sse.Send(live.Command{Kind: live.CmdState, State: st}, render); err != nil {
				sse.Error(err.Error())
			}
		},
	}, nil
}

// applySignals maps form signals onto widget operations. Only signals
// present in the request are applied.
func applySignals(w *widget.Widget, sig live.Signals) {
	w.UpdateParameters(func(m *params.Model) {
		if sig.Has("dateMode") {
			m.SetDateMode(params.DateMode(sig.String("dateMode")))
		}
		if sig.Has("travelDirection") {
			m.SetTravelDirection(params.TravelDirection(sig.String("travelDirection")))
		}
		if sig.Has("date") {
			m.SetDateString(sig.String("date"))
		}
		if sig.Has("dayOfWeek") {
			m.SetDayOfWeek(sig.Int("dayOfWeek"))
		}
		if sig.Has("time") {
			m.SetTimeOfDayString(sig.String("time"))
		}
		if sig.Has("interval") {
			m.SetInterval(sig.Int("interval"))
		}
		if sig.Has("repetition") {
			m.SetRepetition(sig.Int("repetition"))
		}
	})
	if sig.Has("pickMode") {
		w.SetPickMode(sig.Bool("pickMode"))
	}
	if sig.Has("search") {
		w.Search(sig.String("search"))
	}
}

// stateRenderer turns widget snapshots into the "state" signal plus the
// rendered status panel.
func (h *APIHandler) stateRenderer(s *session.Session) live.StateRenderer {
	return func(state any) (map[string]any, string, error) {
		st, ok := state.(widget.State)
		if !ok {
			return nil, "", fmt.Errorf("unexpected state %T", state)
		}
		signals := map[string]any{"state": NewSessionBody(s.ID, s.Created, st)}
		if h.svc.Renderer == nil {
			return signals, "", nil
		}
		html, err := h.svc.Renderer.Render("status-panel", st)
		if err != nil {
			return nil, "", err
		}
		return signals, html, nil
	}
}

// ResourceEvents streams resource change events, such as saved settings.
func (h *APIHandler) ResourceEvents(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	if h.svc.Bus == nil {
		return nil, huma.Error503ServiceUnavailable("events not available")
	}
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := live.NewSSE(humaCtx)
			ch := h.svc.Bus.Subscribe()
			defer h.svc.Bus.Unsubscribe(ch)

			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					sse.DispatchCustomEvent("resource-changed", map[string]any{
						"resource": ev.Resource,
						"action":   ev.Action,
						"id":       ev.ID,
					})
				}
			}
		},
	}, nil
}

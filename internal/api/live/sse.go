package live

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"
)

// StatusPanelSelector is the element the rendered status fragment replaces.
const StatusPanelSelector = "#status-panel"

// StateRenderer turns a state snapshot into Datastar signals and an optional
// status panel fragment.
type StateRenderer func(state any) (signals map[string]any, html string, err error)

// SSE wraps the Datastar SSE generator.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE creates an SSE helper from a Huma streaming context.
func NewSSE(humaCtx huma.Context) SSE {
	r, w := humago.Unwrap(humaCtx)
	return SSE{datastar.NewSSE(w, r)}
}

// Error sends an error signal to the client.
func (s SSE) Error(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"error": msg})
}

// Send writes one command. State goes out as signals plus the status panel,
// cursor and tooltip as signals, and map commands as custom events the page
// script applies to the map.
func (s SSE) Send(c Command, render StateRenderer) error {
	switch c.Kind {
	case CmdState:
		if render == nil {
			return s.MarshalAndPatchSignals(map[string]any{"state": c.State})
		}
		signals, html, err := render(c.State)
		if err != nil {
			return err
		}
		if err := s.MarshalAndPatchSignals(signals); err != nil {
			return err
		}
		if html != "" {
			return s.PatchElements(html,
				datastar.WithSelector(StatusPanelSelector),
				datastar.WithModeInner(),
			)
		}
		return nil
	case CmdCursor:
		return s.MarshalAndPatchSignals(map[string]any{"cursor": c.Cursor})
	case CmdTooltip:
		t := c.Tooltip
		return s.MarshalAndPatchSignals(map[string]any{"tooltip": map[string]any{
			"visible": t.Visible,
			"x":       t.Position.X,
			"y":       t.Position.Y,
			"text":    t.Text,
		}})
	default:
		return s.DispatchCustomEvent("servicearea-"+c.Kind, c)
	}
}

// Stream replays the current picture and then forwards every command until
// ctx ends or the display closes.
func Stream(ctx context.Context, s SSE, d *Display, render StateRenderer) error {
	ch, cancel := d.Subscribe()
	defer cancel()

	for _, c := range d.Snapshot() {
		if err := s.Send(c, render); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.Send(c, render); err != nil {
				return err
			}
		}
	}
}

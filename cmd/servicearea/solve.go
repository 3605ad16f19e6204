package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/joeblew999/plat-servicearea/internal/arcgis"
	"github.com/joeblew999/plat-servicearea/internal/config"
	"github.com/joeblew999/plat-servicearea/internal/loop"
	"github.com/joeblew999/plat-servicearea/internal/mapview"
	"github.com/joeblew999/plat-servicearea/internal/naservice"
	"github.com/joeblew999/plat-servicearea/internal/params"
	"github.com/joeblew999/plat-servicearea/internal/server"
	"github.com/joeblew999/plat-servicearea/internal/service"
	"github.com/joeblew999/plat-servicearea/internal/widget"
	"github.com/joeblew999/plat-servicearea/internal/zones"
)

// solveFlags are the query inputs of the solve subcommand.
type solveFlags struct {
	url        string
	lon, lat   float64
	search     string
	label      string
	interval   int
	repetition int
	date       string
	dayOfWeek  int
	clock      string
	toFacility bool
	timeout    time.Duration
}

func newSolveCmd() *cobra.Command {
	var f solveFlags
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve one service area without a browser and print the zones as GeoJSON",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			path := opts.Settings
			if path == "" {
				path = service.SettingsPath(opts.DataDir)
			}
			settings, err := config.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
				os.Exit(1)
			}
			if f.url != "" {
				settings.ServiceAreaURL = f.url
			}
			if settings.Timezone == "" {
				settings.Timezone = opts.Timezone
			}
			if !cmd.Flags().Changed("search") && (!cmd.Flags().Changed("lon") || !cmd.Flags().Changed("lat")) {
				fmt.Fprintln(os.Stderr, "Either --lon and --lat or --search is required")
				os.Exit(2)
			}

			fc, err := runSolve(cmd, settings, f)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			out, err := json.MarshalIndent(fc, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling zones: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(out))
		}),
	}
	fl := cmd.Flags()
	fl.StringVar(&f.url, "url", "", "Service area layer URL (overrides settings)")
	fl.Float64Var(&f.lon, "lon", 0, "Facility longitude")
	fl.Float64Var(&f.lat, "lat", 0, "Facility latitude")
	fl.StringVar(&f.search, "search", "", "Find the facility by address instead of --lon/--lat")
	fl.StringVar(&f.label, "label", "", "Facility label")
	fl.IntVar(&f.interval, "interval", 0, "Minutes per zone")
	fl.IntVar(&f.repetition, "repetition", 0, "Number of zones")
	fl.StringVar(&f.date, "date", "", "Date YYYY-MM-DD (default today)")
	fl.IntVar(&f.dayOfWeek, "day-of-week", -1, "Weekday 0-6 (0 = Monday) instead of a date")
	fl.StringVar(&f.clock, "time", "", "Time of day HH:MM (default now)")
	fl.BoolVar(&f.toFacility, "to-facility", false, "Travel toward the facility")
	fl.DurationVar(&f.timeout, "timeout", 60*time.Second, "Give up after this long")
	return cmd
}

// runSolve drives a widget on a recording map until the first solve lands.
func runSolve(cmd *cobra.Command, settings config.Settings, f solveFlags) (any, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	client := arcgis.NewClient()
	l := loop.New()
	defer l.Close()

	type result struct {
		outcome *widget.Outcome
		err     error
	}
	done := make(chan result, 1)
	finish := func(r result) {
		select {
		case done <- r:
		default:
		}
	}

	var w *widget.Widget
	err := l.Do(func() {
		w = widget.New(widget.Options{
			Loop:        l,
			Service:     naservice.NewClient(client),
			NewGeocoder: server.GeocoderFactory(client),
			Settings:    settings,
			Hooks: widget.Hooks{
				OnSolve: func(o widget.Outcome) {
					finish(result{outcome: &o})
				},
				OnSearchMiss: func(text string) {
					finish(result{err: fmt.Errorf("no facility found for %q", text)})
				},
			},
		})
		// Error and info states end a one-shot run; nothing will retry.
		w.Subscribe(func(st widget.State) {
			if st.Status == widget.StatusError || st.Status == widget.StatusInfo {
				finish(result{err: errors.New(st.Message)})
			}
		})
		w.AttachMap(mapview.NewSurface(mapview.NewRecorder()))

		fl := cmd.Flags()
		w.UpdateParameters(func(m *params.Model) {
			if f.toFacility {
				m.SetTravelDirection(params.ToFacility)
			}
			if f.dayOfWeek >= 0 {
				m.SetDateMode(params.ModeDayOfWeek)
				m.SetDayOfWeek(f.dayOfWeek)
			} else if fl.Changed("date") {
				m.SetDateString(f.date)
			}
			if fl.Changed("time") {
				m.SetTimeOfDayString(f.clock)
			}
			if fl.Changed("interval") {
				m.SetInterval(f.interval)
			}
			if fl.Changed("repetition") {
				m.SetRepetition(f.repetition)
			}
		})
		if q := w.Query(); !q.Clock.Valid {
			finish(result{err: errors.New("invalid time of day")})
		} else if _, ok := q.TimeOfDay(nil); !ok {
			finish(result{err: errors.New("invalid date")})
		}

		if fl.Changed("search") {
			w.Search(f.search)
		} else {
			w.SelectFacility(orb.Point{f.lon, f.lat}, f.label)
		}
	})
	if err != nil {
		return nil, err
	}

	var r result
	select {
	case r = <-done:
	case <-time.After(f.timeout):
		return nil, fmt.Errorf("no result after %s", f.timeout)
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.outcome.Status == widget.StatusInfo {
		return nil, errors.New(r.outcome.Message)
	}

	var st widget.State
	if err := l.Do(func() {
		st = w.State()
		w.Close()
	}); err != nil {
		return nil, err
	}
	return zones.FeatureCollection(st.Zones), nil
}

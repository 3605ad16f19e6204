package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-servicearea/internal/api"
	"github.com/joeblew999/plat-servicearea/internal/server"
)

// Options defines all CLI flags and env vars for the service area server.
// Flags: --host, --port, --data-dir, --web-dir, --settings, --nats-url, --timezone
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, ...
type Options struct {
	Host     string `doc:"Host to bind to" default:"0.0.0.0"`
	Port     int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir  string `doc:"Directory for settings and solve history" default:".data"`
	WebDir   string `doc:"Path to web/ directory (optional)" default:""`
	Settings string `doc:"Settings YAML file (default <data-dir>/settings.yaml)" default:""`
	NatsURL  string `doc:"NATS server for solve outcomes (optional)" default:""`
	Timezone string `doc:"IANA timezone when the settings name none" default:""`
}

func serverConfig(opts *Options) server.Config {
	return server.Config{
		Host:         opts.Host,
		Port:         fmt.Sprintf("%d", opts.Port),
		DataDir:      opts.DataDir,
		SettingsPath: opts.Settings,
		WebDir:       opts.WebDir,
		NATSURL:      opts.NatsURL,
		Timezone:     opts.Timezone,
	}
}

func main() {
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded .env")
	}

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var (
			srv     *server.Server
			httpSrv *http.Server
		)

		hooks.OnStart(func() {
			var err error
			srv, err = server.New(serverConfig(opts))
			if err != nil {
				log.Fatalf("server: %v", err)
			}
			httpSrv = &http.Server{Addr: fmt.Sprintf("%s:%d", opts.Host, opts.Port), Handler: srv}

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-servicearea API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server error: %v", err)
			}
		})
		hooks.OnStop(func() {
			if httpSrv != nil {
				httpSrv.Close()
			}
			if srv != nil {
				if err := srv.Close(); err != nil {
					log.Printf("close: %v", err)
				}
			}
		})
	})

	cli.Root().Use = "servicearea"
	cli.Root().Short = "Travel-time service area widget server"
	cli.Root().Version = api.Version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg := serverConfig(opts)
			cfg.NoHistory = true
			cfg.NATSURL = ""
			srv, err := server.New(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()
			spec := srv.API().OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	cli.Root().AddCommand(newSolveCmd())

	cli.Run()
}

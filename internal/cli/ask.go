package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ridequery/internal/model"
	"ridequery/internal/service"
)

func newAskCmd(app *App) *cobra.Command {
	var (
		lat, lng, radius float64
		label            string
		asJSON           bool
	)

	cmd := &cobra.Command{
		Use:   "ask <message...>",
		Short: "Interpret a chat message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := app.repositories(cmd.Context())
			if err != nil {
				return err
			}

			cfg := app.Config
			llm, err := service.NewLanguageModel(cfg, app.Logger)
			if err != nil {
				return err
			}

			var provider service.GeocodeProvider
			if cfg.Geocoder.Provider == "gazetteer" {
				provider = service.NewGazetteerProvider(repos.Cities)
			} else {
				provider = service.NewNominatimProvider(cfg.Geocoder)
			}

			loc := cfg.Search.Location()
			interpreter := service.NewInterpreter(
				service.NewIntentParser(llm, cfg.Timeouts.ExternalCall, app.Logger),
				service.NewGeocodingService(provider, nil, 0, 0, app.Logger),
				service.NewRideGateway(repos.Rides, service.NewRanker(loc), cfg.Search.UpstreamCap, time.Now, app.Logger),
				service.NewFormatter(cfg.Bot.PublicBaseURL, loc, time.Now),
				service.EngineConfig{
					DefaultRadiusKm: cfg.Search.DefaultRadiusKm,
					RelaxedRadiusKm: cfg.Search.RelaxedRadiusKm,
					ResultLimit:     cfg.Search.DefaultLimit,
					CallTimeout:     cfg.Timeouts.ExternalCall,
					Location:        loc,
				},
				time.Now,
				app.Logger,
			)

			requester := &model.RequesterContext{ID: "cli"}
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
				requester.Lat, requester.Lng = &lat, &lng
				if label != "" {
					requester.CityLabel = &label
				}
			}
			if cmd.Flags().Changed("radius") {
				requester.RadiusKm = &radius
			}

			result := interpreter.InterpretAndSearch(cmd.Context(), strings.Join(args, " "), requester)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			_, err = fmt.Fprintln(out, result.Narrative)
			return err
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "saved latitude of the requester")
	cmd.Flags().Float64Var(&lng, "lng", 0, "saved longitude of the requester")
	cmd.Flags().StringVar(&label, "city", "", "label for the saved location")
	cmd.Flags().Float64Var(&radius, "radius", 0, "saved search radius in km")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full interpretation as JSON")
	return cmd
}

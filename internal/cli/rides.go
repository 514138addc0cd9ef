package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ridequery/internal/model"
	"ridequery/internal/service"
)

// rideRecord is one entry of a ride import file
type rideRecord struct {
	Title         string     `json:"title" validate:"required,max=200"`
	Description   *string    `json:"description"`
	StartTime     time.Time  `json:"start_time" validate:"required"`
	EndTime       *time.Time `json:"end_time"`
	LocationName  *string    `json:"location_name"`
	Address       *string    `json:"address"`
	Latitude      *float64   `json:"latitude" validate:"omitempty,latitude"`
	Longitude     *float64   `json:"longitude" validate:"omitempty,longitude"`
	MaxAttendees  *int       `json:"max_attendees" validate:"omitempty,gt=0"`
	AttendeeCount int        `json:"attendee_count" validate:"gte=0"`
	PaceMin       *float64   `json:"pace_min" validate:"omitempty,gt=0"`
	PaceMax       *float64   `json:"pace_max" validate:"omitempty,gt=0"`
	DistanceKm    *float64   `json:"distance_km" validate:"omitempty,gt=0"`
	Terrain       *string    `json:"terrain"`
	CommunitySlug *string    `json:"community_slug"`
	CommunityName *string    `json:"community_name"`
	ChapterName   *string    `json:"chapter_name"`
}

func (r rideRecord) toRide() model.RideCandidate {
	return model.RideCandidate{
		Title:         r.Title,
		Description:   r.Description,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		LocationName:  r.LocationName,
		Address:       r.Address,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		MaxAttendees:  r.MaxAttendees,
		AttendeeCount: r.AttendeeCount,
		PaceMin:       r.PaceMin,
		PaceMax:       r.PaceMax,
		DistanceKm:    r.DistanceKm,
		Terrain:       r.Terrain,
		CommunitySlug: r.CommunitySlug,
		CommunityName: r.CommunityName,
		ChapterName:   r.ChapterName,
	}
}

func newRidesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rides",
		Short: "Load rides and maintain their embeddings",
	}
	cmd.AddCommand(newRidesImportCmd(app), newRidesEmbedCmd(app))
	return cmd
}

func newRidesImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <rides.json>",
		Short: "Insert rides from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var records []rideRecord
			if err := json.Unmarshal(data, &records); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}

			// Validate the whole file before writing anything
			validate := validator.New()
			for i, rec := range records {
				if err := validate.Struct(rec); err != nil {
					return fmt.Errorf("ride %d (%q): %w", i, rec.Title, err)
				}
				if (rec.Latitude == nil) != (rec.Longitude == nil) {
					return fmt.Errorf("ride %d (%q): latitude and longitude must be set together", i, rec.Title)
				}
			}

			repos, err := app.repositories(cmd.Context())
			if err != nil {
				return err
			}

			for i, rec := range records {
				ride := rec.toRide()
				id, err := repos.Rides.InsertRide(cmd.Context(), &ride)
				if err != nil {
					return fmt.Errorf("ride %d (%q): %w", i, rec.Title, err)
				}
				app.Logger.Debug("Ride imported", zap.Int64("ride_id", id), zap.String("title", rec.Title))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rides\n", len(records))
			return nil
		},
	}
}

func newRidesEmbedCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Create embeddings for upcoming rides that have none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := service.NewOpenAIClient(&app.Config.OpenAI, app.Logger)
			if !client.IsEnabled() {
				return fmt.Errorf("OPENAI_API_KEY is required to create embeddings")
			}

			repos, err := app.repositories(cmd.Context())
			if err != nil {
				return err
			}

			loc := app.Config.Search.Location()
			now := time.Now().In(loc)
			since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
			rides, err := repos.Rides.ListMissingEmbeddings(cmd.Context(), since, limit)
			if err != nil {
				return err
			}
			if len(rides) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "All upcoming rides have embeddings")
				return nil
			}

			texts := make([]string, len(rides))
			for i, ride := range rides {
				texts[i] = embeddingText(ride)
			}

			vectors, err := client.CreateEmbeddings(cmd.Context(), texts)
			if err != nil {
				return err
			}

			items := make([]model.EmbeddingItem, 0, len(rides))
			for i, ride := range rides {
				if len(vectors[i]) == 0 {
					continue
				}
				items = append(items, model.EmbeddingItem{RideID: ride.ID, Embedding: vectors[i], Text: texts[i]})
			}

			success, errs := repos.Rides.BatchUpdateEmbeddings(cmd.Context(), items)
			for _, e := range errs {
				app.Logger.Warn("Embedding update failed", zap.String("error", e))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d of %d rides\n", success, len(rides))
			if len(errs) > 0 {
				return fmt.Errorf("%d embedding updates failed", len(errs))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 500, "maximum rides to embed in one run")
	return cmd
}

// embeddingText is the text a ride is embedded from
func embeddingText(ride model.RideCandidate) string {
	parts := []string{ride.Title}
	for _, s := range []*string{ride.Terrain, ride.CommunityName, ride.ChapterName, ride.LocationName, ride.Description} {
		if s != nil && strings.TrimSpace(*s) != "" {
			parts = append(parts, strings.TrimSpace(*s))
		}
	}
	return strings.Join(parts, "\n")
}

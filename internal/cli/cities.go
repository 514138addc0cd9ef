package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ridequery/internal/model"
)

// GeoNames dump columns, see https://download.geonames.org/export/dump/readme.txt
const (
	geoNamesID         = 0
	geoNamesName       = 1
	geoNamesASCIIName  = 2
	geoNamesLatitude   = 4
	geoNamesLongitude  = 5
	geoNamesCountry    = 8
	geoNamesPopulation = 14
	geoNamesMinFields  = 15
)

func newCitiesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cities",
		Short: "Manage the offline gazetteer",
	}

	var (
		minPopulation int64
		batchSize     int
	)
	importCmd := &cobra.Command{
		Use:   "import <cities.txt>",
		Short: "Import a GeoNames cities dump (tab separated)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			repos, err := app.repositories(cmd.Context())
			if err != nil {
				return err
			}

			total := 0
			err = parseGeoNames(f, minPopulation, batchSize, func(batch []model.City) error {
				n, err := repos.Cities.BulkUpsert(cmd.Context(), batch)
				total += n
				return err
			})
			if err != nil {
				return err
			}

			app.Logger.Info("Cities imported", zap.Int("count", total), zap.String("file", args[0]))
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cities\n", total)
			return nil
		},
	}
	importCmd.Flags().Int64Var(&minPopulation, "min-population", 0, "skip places with fewer inhabitants")
	importCmd.Flags().IntVar(&batchSize, "batch-size", 1000, "rows per transaction")

	cmd.AddCommand(importCmd)
	return cmd
}

// parseGeoNames streams a GeoNames dump and hands cities to flush in batches
func parseGeoNames(r io.Reader, minPopulation int64, batchSize int, flush func([]model.City) error) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	batch := make([]model.City, 0, batchSize)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) < geoNamesMinFields {
			return fmt.Errorf("line %d: expected at least %d fields, got %d", line, geoNamesMinFields, len(record))
		}

		city, err := geoNamesCity(record)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if city.Population < minPopulation {
			continue
		}

		batch = append(batch, city)
		if len(batch) == batchSize {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		return flush(batch)
	}
	return nil
}

func geoNamesCity(record []string) (model.City, error) {
	id, err := strconv.ParseInt(record[geoNamesID], 10, 64)
	if err != nil {
		return model.City{}, fmt.Errorf("invalid geonameid %q", record[geoNamesID])
	}
	lat, err := strconv.ParseFloat(record[geoNamesLatitude], 64)
	if err != nil {
		return model.City{}, fmt.Errorf("invalid latitude %q", record[geoNamesLatitude])
	}
	lng, err := strconv.ParseFloat(record[geoNamesLongitude], 64)
	if err != nil {
		return model.City{}, fmt.Errorf("invalid longitude %q", record[geoNamesLongitude])
	}

	var population int64
	if s := record[geoNamesPopulation]; s != "" {
		if population, err = strconv.ParseInt(s, 10, 64); err != nil {
			return model.City{}, fmt.Errorf("invalid population %q", s)
		}
	}

	asciiName := record[geoNamesASCIIName]
	if asciiName == "" {
		asciiName = record[geoNamesName]
	}

	return model.City{
		ID:          id,
		Name:        record[geoNamesName],
		ASCIIName:   asciiName,
		CountryCode: record[geoNamesCountry],
		Latitude:    lat,
		Longitude:   lng,
		Population:  population,
	}, nil
}

// Package cli implements the airctl command line tool on top of the
// airmonitor HTTP API.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/api/models"
	"github.com/airmonitor/airmonitor/internal/apiclient"
	"github.com/airmonitor/airmonitor/internal/archive"
	"github.com/airmonitor/airmonitor/internal/archive/export"
)

// DefaultServer is used when neither --server nor AIRMONITOR_SERVER is set.
const DefaultServer = "http://localhost:8080"

type app struct {
	server  string
	output  string
	timeout time.Duration
	verbose bool

	client  *apiclient.Client
	printer printer
}

// New builds the airctl root command.
func New(version string) *cobra.Command {
	a := &app{}

	server := os.Getenv("AIRMONITOR_SERVER")
	if server == "" {
		server = DefaultServer
	}

	root := &cobra.Command{
		Use:           "airctl",
		Short:         "Search air quality stations and manage measurement archives",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch a.output {
			case OutputTable, OutputJSON, OutputYAML:
			default:
				return fmt.Errorf("unknown output format %q (want table, json or yaml)", a.output)
			}

			logger := zerolog.Nop()
			if a.verbose {
				logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
			}
			a.client = apiclient.New(apiclient.Config{
				BaseURL:   a.server,
				UserAgent: "airctl/" + version,
				Timeout:   a.timeout,
				Logger:    logger,
			})
			a.printer = printer{format: a.output, out: cmd.OutOrStdout()}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.server, "server", server, "airmonitor API base URL (env AIRMONITOR_SERVER)")
	flags.StringVarP(&a.output, "output", "o", OutputTable, "output format: table, json or yaml")
	flags.DurationVar(&a.timeout, "timeout", 30*time.Second, "request timeout")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log requests to stderr")

	root.AddCommand(
		a.searchCmd(),
		a.stationsCmd(),
		a.reloadCmd(),
		a.sensorsCmd(),
		a.measurementsCmd(),
		a.statusCmd(),
		a.archiveCmd(),
	)

	return root
}

func parseID(name, raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

func stationTable(stations []airquality.Station) func(w *tabwriter.Writer) {
	return func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tCITY\tADDRESS\tLAT\tLON")
		for _, s := range stations {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.4f\t%.4f\n", s.ID, s.Name, s.City, s.Address, s.Location.Lat, s.Location.Lon)
		}
	}
}

func (a *app) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <city>",
		Short: "Find the stations of a city, or the nearest one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.print(res, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "OUTCOME\t%s\n", res.Outcome)
				fmt.Fprintf(w, "CENTER\t%.4f, %.4f\n", res.Center.Lat, res.Center.Lon)
				if res.Outcome == airquality.OutcomeNearest {
					fmt.Fprintf(w, "DISTANCE\t%.1f km\n", res.NearestDistance/1000)
				}
				fmt.Fprintf(w, "MESSAGE\t%s\n\n", res.Message)
				stationTable(res.Matched)(w)
			})
		},
	}
}

func (a *app) stationsCmd() *cobra.Command {
	var matched bool
	cmd := &cobra.Command{
		Use:   "stations",
		Short: "List the station catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stations, err := a.client.Stations(cmd.Context(), matched)
			if err != nil {
				return err
			}
			return a.printer.print(models.StationsResponse{Items: stations, Count: len(stations)}, stationTable(stations))
		},
	}
	cmd.Flags().BoolVar(&matched, "matched", false, "only stations matched by the last search")
	return cmd
}

func (a *app) reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-download the station catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stations, err := a.client.ReloadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer.print(models.StationsResponse{Items: stations, Count: len(stations)}, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Loaded %d stations\n", len(stations))
			})
		},
	}
}

func (a *app) sensorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sensors <stationId>",
		Short: "Load the sensors of a station",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stationID, err := parseID("stationId", args[0])
			if err != nil {
				return err
			}
			sensors, err := a.client.FetchSensors(cmd.Context(), stationID)
			if err != nil {
				return err
			}
			return a.printer.print(models.SensorsResponse{StationID: stationID, Items: sensors}, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "SENSOR\tPARAMETER")
				for _, s := range sensors {
					fmt.Fprintf(w, "%d\t%s\n", s.SensorID, s.ParamName)
				}
			})
		},
	}
}

func measurementTable(items []airquality.Measurement) func(w *tabwriter.Writer) {
	return func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "DATE\tVALUE")
		for _, m := range items {
			fmt.Fprintf(w, "%s\t%s\n", m.Date, formatValue(m.Value))
		}
	}
}

func (a *app) measurementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "measurements <sensorId>",
		Short: "Load the measurement series of a sensor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sensorID, err := parseID("sensorId", args[0])
			if err != nil {
				return err
			}
			items, err := a.client.FetchMeasurements(cmd.Context(), sensorID)
			if err != nil {
				return err
			}
			return a.printer.print(models.MeasurementsResponse{SensorID: sensorID, Items: items}, measurementTable(items))
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server and provider health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.client.Status(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer.print(st, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "STATUS\t%s\n\n", st.Status)
				fmt.Fprintln(w, "PROVIDER\tSTATUS\tCIRCUIT\tFAILURES")
				for _, p := range st.Providers {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", p.Provider, p.Status, p.CircuitState, p.ConsecutiveFailures)
				}
			})
		},
	}
}

func (a *app) archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "List, save, show and export archived station snapshots",
	}
	cmd.AddCommand(
		a.archiveListCmd(),
		a.archiveSaveCmd(),
		a.archiveShowCmd(),
		a.archiveExportCmd(),
	)
	return cmd
}

func (a *app) archiveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.client.Archives(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer.print(models.ArchivesResponse{Items: items, Count: len(items)}, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "STATION\tNAME\tCITY\tSAVED")
				for _, s := range items {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.StationID, s.StationName, s.CityName, s.SaveDate)
				}
			})
		},
	}
}

func (a *app) archiveSaveCmd() *cobra.Command {
	var (
		city    string
		address string
		fetch   bool
	)
	cmd := &cobra.Command{
		Use:   "save <stationId>",
		Short: "Snapshot a station's sensors and measurements",
		Long: "Snapshot a station's sensors and measurements. By default the sensors and " +
			"every series are loaded first; with --fetch=false the server's current view is saved.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stationID, err := parseID("stationId", args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if fetch {
				sensors, err := a.client.FetchSensors(ctx, stationID)
				if err != nil {
					return err
				}
				for _, s := range sensors {
					if _, err := a.client.FetchMeasurements(ctx, s.SensorID); err != nil {
						// A missing series is saved empty.
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: sensor %d: %v\n", s.SensorID, err)
					}
				}
			}

			rec, err := a.client.SaveArchive(ctx, models.SaveArchiveRequest{
				StationID: stationID,
				CityName:  city,
				Address:   address,
			})
			if err != nil {
				return err
			}
			return a.printer.print(rec, recordTable(rec))
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "city name to store (default: catalog value)")
	cmd.Flags().StringVar(&address, "address", "", "address to store (default: catalog value)")
	cmd.Flags().BoolVar(&fetch, "fetch", true, "load sensors and measurements before saving")
	return cmd
}

func (a *app) archiveShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <stationId> <saveDate>",
		Short: "Restore an archive into the live view and print it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stationID, err := parseID("stationId", args[0])
			if err != nil {
				return err
			}
			rec, err := a.client.RestoreArchive(cmd.Context(), stationID, args[1])
			if err != nil {
				return err
			}
			return a.printer.print(rec, recordTable(rec))
		},
	}
}

func (a *app) archiveExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <stationId> <saveDate> <file.xlsx|file.pdf>",
		Short: "Download an archive as a spreadsheet or PDF report",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			stationID, err := parseID("stationId", args[0])
			if err != nil {
				return err
			}
			format, err := export.ParseFormat(args[2])
			if err != nil {
				return err
			}

			body, err := a.client.Export(cmd.Context(), stationID, args[1], string(format))
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[2], body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", args[2], err)
			}
			cmd.Printf("Wrote %s (%d bytes)\n", args[2], len(body))
			return nil
		},
	}
}

func recordTable(rec *archive.Record) func(w *tabwriter.Writer) {
	return func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "STATION\t%d %s\n", rec.StationID, rec.StationName)
		fmt.Fprintf(w, "CITY\t%s\n", rec.CityName)
		fmt.Fprintf(w, "ADDRESS\t%s\n", rec.Address)
		fmt.Fprintf(w, "LOCATION\t%.4f, %.4f\n", rec.Latitude, rec.Longitude)
		fmt.Fprintf(w, "SAVED\t%s\n", rec.SaveDate)
		for _, s := range rec.Sensors {
			fmt.Fprintf(w, "\nSENSOR %d\t%s (%d readings)\n", s.SensorID, s.ParamName, len(s.Measurements))
			measurementTable(s.Measurements)(w)
		}
	}
}

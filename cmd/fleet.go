package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/sosdispatch/config"
	"github.com/kilianp07/sosdispatch/core/fleet"
	"github.com/kilianp07/sosdispatch/core/model"
)

var (
	fleetOutput string
	fleetServer string
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet related commands",
}

var fleetLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List patrol units from the configuration or a running server",
	RunE:  runFleetLs,
}

func init() {
	fleetLsCmd.Flags().StringVarP(&fleetOutput, "output", "o", "table", "output format: table or yaml")
	fleetLsCmd.Flags().StringVar(&fleetServer, "server", "", "base URL of a running sosd, e.g. http://localhost:8080")
	fleetCmd.AddCommand(fleetLsCmd)
	rootCmd.AddCommand(fleetCmd)
}

func runFleetLs(cmd *cobra.Command, args []string) error {
	var units []model.PatrolUnit
	if fleetServer != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		var err error
		if units, err = fetchUnits(ctx, fleetServer); err != nil {
			return err
		}
	} else {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		units = cfg.Fleet.Roster()
		if len(units) == 0 {
			units = fleet.DefaultRoster()
		}
	}
	return renderUnits(cmd.OutOrStdout(), units, fleetOutput)
}

func fetchUnits(ctx context.Context, server string) ([]model.PatrolUnit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(server, "/")+"/api/sos/units", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list units: %s", resp.Status)
	}
	var units []model.PatrolUnit
	if err := json.NewDecoder(resp.Body).Decode(&units); err != nil {
		return nil, fmt.Errorf("decode units: %w", err)
	}
	return units, nil
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	availableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	busyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true)
)

func renderUnits(w io.Writer, units []model.PatrolUnit, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(units); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	rows := make([][]string, 0, len(units))
	for _, u := range units {
		status := availableStyle.Render(string(u.Status))
		if !u.Available() {
			status = busyStyle.Render(string(u.Status))
		}
		rows = append(rows, []string{
			u.ID,
			u.Name,
			status,
			fmt.Sprintf("%.4f", u.CurrentPosition.Lat),
			fmt.Sprintf("%.4f", u.CurrentPosition.Lon),
			u.AlertID,
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headerStyle.Render("ID"), headerStyle.Render("NAME"), headerStyle.Render("STATUS"),
			headerStyle.Render("LAT"), headerStyle.Render("LON"), headerStyle.Render("ALERT")).
		Rows(rows...)
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// Command dealsctl is an admin CLI for a running dealsserver: ping it,
// clear its tables, and query /deals/top and /destinations/top with
// human-readable rendering. Grounded on cmd/bd's cobra subcommand shell and
// its charmbracelet/huh confirmation-prompt, charmbracelet/lipgloss table
// styling, and muesli/termenv terminal-capability conventions
// (cmd/bd/create_form.go, cmd/bd-examples/main.go).
package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/flightdeals/dealsindex/internal/httpapi"
)

var (
	serverAddr string
	httpClient = &http.Client{Timeout: 10 * time.Second}
)

var rootCmd = &cobra.Command{
	Use:   "dealsctl",
	Short: "dealsctl - admin CLI for a running dealsserver",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://127.0.0.1:8080", "dealsserver base URL")
	rootCmd.AddCommand(pingCmd, clearCmd, topCmd, destinationsTopCmd)
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "check the server is alive",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := httpClient.Get(serverAddr + "/ping")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ping: %s: %s", resp.Status, body)
		}
		fmt.Print(okStyle().Render(strings.TrimSpace(string(body))), "\n")
		return nil
	},
}

var clearScope string

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "truncate the deals and/or destinations tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := map[string]string{"all": "/clear", "deals": "/deals/clear", "destinations": "/destinations/clear"}[clearScope]
		if path == "" {
			return fmt.Errorf("bad --scope %q (want all, deals, or destinations)", clearScope)
		}

		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Truncate %s on %s?", clearScope, serverAddr)).
			Affirmative("Clear").
			Negative("Cancel").
			Value(&confirmed).
			Run()
		if err != nil {
			if err == huh.ErrUserAborted {
				fmt.Fprintln(os.Stderr, "cancelled")
				return nil
			}
			return err
		}
		if !confirmed {
			fmt.Fprintln(os.Stderr, "cancelled")
			return nil
		}

		resp, err := httpClient.Get(serverAddr + path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("clear: %s: %s", resp.Status, body)
		}
		fmt.Print(okStyle().Render(strings.TrimSpace(string(body))), "\n")
		return nil
	},
}

func init() {
	clearCmd.Flags().StringVar(&clearScope, "scope", "all", "all, deals, or destinations")
}

var (
	topOrigin      string
	topDests       string
	topLimit       int
	topDayByDay    bool
	topQueryString string
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "query the cheapest matching deals",
	RunE: func(cmd *cobra.Command, args []string) error {
		if topQueryString != "" {
			if matched, ok := fuzzyDestination(topQueryString); ok {
				if topDests != "" {
					topDests += ","
				}
				topDests += matched
			}
		}

		q := url.Values{}
		q.Set("origin", strings.ToUpper(topOrigin))
		if topDests != "" {
			q.Set("destinations", strings.ToUpper(topDests))
		}
		if topLimit > 0 {
			q.Set("deals_limit", strconv.Itoa(topLimit))
		}
		if topDayByDay {
			q.Set("day_by_day", "true")
		}

		resp, err := httpClient.Get(serverAddr + "/deals/top?" + q.Encode())
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNoContent {
			fmt.Println("no results")
			return nil
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("top: %s: %s", resp.Status, body)
		}

		blobs, err := httpapi.DecodeDealsTop(body)
		if err != nil {
			return err
		}
		renderBlobTable(blobs)
		return nil
	},
}

func init() {
	topCmd.Flags().StringVar(&topOrigin, "origin", "", "origin IATA code (required)")
	topCmd.Flags().StringVar(&topDests, "destinations", "", "comma-separated destination IATA codes")
	topCmd.Flags().IntVar(&topLimit, "limit", 10, "maximum results")
	topCmd.Flags().BoolVar(&topDayByDay, "day-by-day", false, "group by departure date instead of destination")
	topCmd.Flags().StringVar(&topQueryString, "query", "", "fuzzy-match a city/airport name into --destinations")
	topCmd.MarkFlagRequired("origin")
}

var (
	destLocale string
	destLimit  int
)

var destinationsTopCmd = &cobra.Command{
	Use:   "destinations-top",
	Short: "rank destinations by observed popularity for a locale",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		q.Set("locale", strings.ToLower(destLocale))
		if destLimit > 0 {
			q.Set("destinations_limit", strconv.Itoa(destLimit))
		}

		resp, err := httpClient.Get(serverAddr + "/destinations/top?" + q.Encode())
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusNoContent {
			fmt.Println("no results")
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("destinations-top: %s: %s", resp.Status, body)
		}
		fmt.Print(string(body))
		return nil
	},
}

func init() {
	destinationsTopCmd.Flags().StringVar(&destLocale, "locale", "", "2-letter locale (required)")
	destinationsTopCmd.Flags().IntVar(&destLimit, "limit", 10, "maximum results")
	destinationsTopCmd.MarkFlagRequired("locale")
}

// iataCities is a small reference table used only by --query's fuzzy match;
// it is not part of the deals domain model, which never names cities.
var iataCities = map[string]string{
	"MOW": "Moscow", "MAD": "Madrid", "BER": "Berlin", "LON": "London",
	"PAR": "Paris", "LAX": "Los Angeles", "LED": "Saint Petersburg",
	"FRA": "Frankfurt", "BAR": "Barcelona", "JFK": "New York",
}

// fuzzyDestination matches query against iataCities' city names using
// sahilm/fuzzy and returns the IATA code of the best match.
func fuzzyDestination(query string) (string, bool) {
	codes := make([]string, 0, len(iataCities))
	names := make([]string, 0, len(iataCities))
	for code, name := range iataCities {
		codes = append(codes, code)
		names = append(names, name)
	}
	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		return "", false
	}
	return codes[matches[0].Index], true
}

// renderBlobTable prints each decoded blob's size and a short preview,
// using lipgloss when the terminal supports color and plain text otherwise
// (muesli/termenv.ColorProfile detects that capability), grounded on
// cmd/bd-examples/main.go's AdaptiveColor style set.
func renderBlobTable(blobs [][]byte) {
	headerStyle := lipgloss.NewStyle().Bold(true)
	rowStyle := lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"})

	if termenv.ColorProfile() == termenv.Ascii {
		headerStyle = lipgloss.NewStyle()
		rowStyle = lipgloss.NewStyle()
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-4s  %-8s  %s", "#", "BYTES", "PREVIEW")))
	for i, b := range blobs {
		preview := string(b)
		if len(preview) > 40 {
			preview = preview[:40] + "..."
		}
		fmt.Println(rowStyle.Render(fmt.Sprintf("%-4d  %-8d  %s", i+1, len(b), preview)))
	}
}

func okStyle() lipgloss.Style {
	if termenv.ColorProfile() == termenv.Ascii {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

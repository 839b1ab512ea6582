package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	infraerrors "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/http"
	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
)

const reportTimeout = 30 * time.Second

var errNotAdmin = errors.New("token does not grant admin access")

// dashboardClient reads the operator API.
type dashboardClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newDashboardClient(baseURL, token string) *dashboardClient {
	return &dashboardClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: reportTimeout}),
	}
}

// Fetch verifies admin access and then loads the dashboard.
func (c *dashboardClient) Fetch(ctx context.Context, refresh bool) (*domain.Dashboard, error) {
	var verify struct {
		IsAdmin bool `json:"isAdmin"`
	}
	if err := c.get(ctx, "/api/v1/admin/verify", &verify); err != nil {
		return nil, fmt.Errorf("verify admin: %w", err)
	}
	if !verify.IsAdmin {
		return nil, errNotAdmin
	}

	path := "/api/v1/analytics/metrics"
	if refresh {
		path += "?refresh=true"
	}
	var d domain.Dashboard
	if err := c.get(ctx, path, &d); err != nil {
		return nil, fmt.Errorf("fetch metrics: %w", err)
	}
	return &d, nil
}

func (c *dashboardClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
			return httpErr
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	return nil
}

func newReportCommand(global *globalOptions) *cobra.Command {
	var (
		token   string
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the operator dashboard as tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv("ANALYTICS_TOKEN")
			}
			if token == "" {
				return errors.New("bearer token required: pass --token or set ANALYTICS_TOKEN")
			}

			d, err := newDashboardClient(global.serverURL, token).Fetch(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			renderDashboard(cmd.OutOrStdout(), d)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "operator bearer token (default $ANALYTICS_TOKEN)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the server-side metrics cache")
	return cmd
}

// renderDashboard writes the dashboard as a series of tables.
func renderDashboard(w io.Writer, d *domain.Dashboard) {
	newTable := func(title string, header table.Row) table.Writer {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.SetTitle(title)
		t.AppendHeader(header)
		return t
	}

	overview := newTable("Overview", table.Row{"Metric", "Value"})
	overview.AppendRows([]table.Row{
		{"Total sessions", d.TotalSessions},
		{"Page views", d.TotalPageViews},
		{"Avg session", domain.FormatDuration(d.AvgSessionDuration)},
		{"Avg scroll depth", fmt.Sprintf("%.0f%%", d.AvgScrollDepth)},
		{"Generated", d.GeneratedAt.Format(time.RFC3339)},
	})
	overview.Render()

	dist := newTable("Session duration", table.Row{"Bucket", "Sessions"})
	for _, bucket := range domain.DistributionBuckets {
		dist.AppendRow(table.Row{bucket, d.SessionDistribution[bucket]})
	}
	dist.Render()

	pages := newTable("Top pages", table.Row{"#", "Path", "Views"})
	for i, p := range d.TopPages {
		pages.AppendRow(table.Row{i + 1, p.Path, p.Count})
	}
	pages.Render()

	clicks := newTable("Button clicks", table.Row{"Element", "Clicks"})
	for _, kv := range sortedCounts(d.ButtonClicks) {
		clicks.AppendRow(table.Row{kv.key, kv.count})
	}
	clicks.Render()

	devices := newTable("Devices", table.Row{"Device", "Sessions"})
	devices.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	for _, dt := range []domain.DeviceType{domain.DeviceDesktop, domain.DeviceTablet, domain.DeviceMobile} {
		devices.AppendRow(table.Row{dt, d.DeviceBreakdown[dt]})
	}
	devices.Render()

	sources := newTable("Top traffic sources", table.Row{"Source", "Sessions"})
	for _, s := range d.TopTrafficSources {
		sources.AppendRow(table.Row{s.Source, s.Count})
	}
	sources.Render()
}

type keyCount struct {
	key   string
	count int
}

// sortedCounts orders m by count descending, then key ascending.
func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, c := range m {
		out = append(out, keyCount{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

// Package main provides the user CLI entry point for testing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/tunemap/internal/api/httpapi"
	"github.com/osa030/tunemap/internal/app/geocache"
	"github.com/osa030/tunemap/internal/app/notification"
	"github.com/osa030/tunemap/internal/domain/region"
)

var (
	app    = kingpin.New("tunemap", "tunemap user client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("TUNEMAP_SERVER").String()

	// browse command
	browseCmd      = app.Command("browse", "Show top songs for every country in a map area")
	browseLat      = browseCmd.Arg("lat", "Center latitude").Required().Float64()
	browseLon      = browseCmd.Arg("lon", "Center longitude").Required().Float64()
	browseLatDelta = browseCmd.Flag("lat-delta", "Visible latitude span in degrees").Default("20").Float64()
	browseLonDelta = browseCmd.Flag("lon-delta", "Visible longitude span in degrees").Default("30").Float64()

	// offer command
	offerCmd     = app.Command("offer", "Ask whether \"search this area\" should be offered")
	offerLat     = offerCmd.Arg("lat", "Current center latitude").Required().Float64()
	offerLon     = offerCmd.Arg("lon", "Current center longitude").Required().Float64()
	offerLastSet bool
	offerLastLat = offerCmd.Flag("last-lat", "Latitude of the last search").IsSetByUser(&offerLastSet).Float64()
	offerLastLon = offerCmd.Flag("last-lon", "Longitude of the last search").IsSetByUser(&offerLastSet).Float64()

	// watch command
	watchCmd = app.Command("watch", "Watch cache changes")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := httpapi.NewClient(*server, "", nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Execute command
	switch command {
	case browseCmd.FullCommand():
		browse(ctx, client, region.Viewport{
			Center:         region.Coordinate{Latitude: *browseLat, Longitude: *browseLon},
			LatitudeDelta:  *browseLatDelta,
			LongitudeDelta: *browseLonDelta,
		})
	case offerCmd.FullCommand():
		var last *region.Coordinate
		if offerLastSet {
			last = &region.Coordinate{Latitude: *offerLastLat, Longitude: *offerLastLon}
		}
		offer(ctx, client, region.Coordinate{Latitude: *offerLat, Longitude: *offerLon}, last)
	case watchCmd.FullCommand():
		watch(ctx, client)
	}
}

func browse(ctx context.Context, client *httpapi.Client, v region.Viewport) {
	resp, err := client.RefreshViewport(ctx, v)
	if err != nil {
		fail(err)
	}

	if len(resp.Entries) == 0 && len(resp.Missing) == 0 {
		fmt.Println("No countries in this area")
		return
	}

	codes := make([]string, 0, len(resp.Entries))
	for code := range resp.Entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		e := resp.Entries[code]
		fmt.Printf("\n%s %s (%.2f, %.2f)\n", code, e.CountryName, e.Latitude, e.Longitude)
		fmt.Printf("  %s - %s [%s]\n", e.Payload.ArtistNames(), e.Payload.Name, e.Payload.DurationFormatted())
		if e.Payload.URL != "" {
			fmt.Printf("  %s\n", e.Payload.URL)
		}
		if e.Payload.HasPreview() {
			fmt.Printf("  Preview: %s\n", e.Payload.PreviewURL)
		}
	}
	if len(resp.Missing) > 0 {
		fmt.Printf("\nNo song for: %v\n", resp.Missing)
	}
}

func offer(ctx context.Context, client *httpapi.Client, current region.Coordinate, last *region.Coordinate) {
	resp, err := client.Offer(ctx, current, last)
	if err != nil {
		fail(err)
	}
	if resp.DistanceKm != nil {
		fmt.Printf("Moved %.0f km since the last search\n", *resp.DistanceKm)
	}
	if resp.Offer {
		fmt.Println("Offer \"search this area\"")
	} else {
		fmt.Println("Too close to the last search; no offer")
	}
}

func watch(ctx context.Context, client *httpapi.Client) {
	fmt.Println("Watching cache changes. Press Ctrl+C to exit.")

	err := client.Watch(ctx, printEvent)
	if err != nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\nStopped watching")
}

func printEvent(e *notification.Event) {
	fmt.Printf("[Sequence: %d] %s ", e.SequenceNo, e.Time.Local().Format(time.TimeOnly))
	switch e.Op {
	case geocache.OpPut:
		fmt.Printf("cached: %v\n", e.Keys)
	case geocache.OpRemove:
		fmt.Printf("removed: %v\n", e.Keys)
	case geocache.OpExpire:
		fmt.Printf("expired: %v\n", e.Keys)
	case geocache.OpEvict:
		fmt.Printf("evicted: %v\n", e.Keys)
	case geocache.OpClear:
		fmt.Println("cache cleared")
	default:
		fmt.Printf("unknown change (%s): %v\n", e.Op, e.Keys)
	}
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

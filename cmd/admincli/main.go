// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/tunemap/internal/api/httpapi"
	"github.com/osa030/tunemap/internal/app/regional"
	"github.com/osa030/tunemap/internal/domain/region"
)

var (
	app     = kingpin.New("tunemap-admin", "tunemap cache admin client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("TUNEMAP_SERVER").String()
	token   = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("2m").Duration()

	// status command
	statusCmd = app.Command("status", "Show cache and token status")

	// list command
	listCmd   = app.Command("list", "List cached entries").Alias("ls")
	listCodes = listCmd.Arg("codes", "Only these country codes").Strings()

	// evict command
	evictCmd  = app.Command("evict", "Remove one country from the cache")
	evictCode = evictCmd.Arg("code", "Country code (ISO 3166-1 alpha-2)").Required().String()

	// clear command
	clearCmd = app.Command("clear", "Remove every cached entry")

	// refresh command
	refreshCmd   = app.Command("refresh", "Fetch top songs for the given countries")
	refreshAll   = refreshCmd.Flag("all", "Refresh every known country").Bool()
	refreshCodes = refreshCmd.Arg("codes", "Country codes").Strings()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Check admin token for commands that change the cache
	if (command == evictCmd.FullCommand() || command == clearCmd.FullCommand()) && *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := httpapi.NewClient(*server, *token, nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Execute command
	switch command {
	case statusCmd.FullCommand():
		status(ctx, client)
	case listCmd.FullCommand():
		list(ctx, client, *listCodes)
	case evictCmd.FullCommand():
		evict(ctx, client, *evictCode)
	case clearCmd.FullCommand():
		clearCache(ctx, client)
	case refreshCmd.FullCommand():
		codes := *refreshCodes
		if *refreshAll {
			codes = region.Countries.Codes()
		}
		if len(codes) == 0 {
			fmt.Println("Error: give country codes or --all")
			os.Exit(1)
		}
		refresh(ctx, client, codes)
	}
}

func status(ctx context.Context, client *httpapi.Client) {
	s, err := client.Status(ctx)
	if err != nil {
		fail(err)
	}

	fmt.Println("\n=== CACHE STATUS ===")
	fmt.Printf("Entries: %d / %d\n", s.Cache.Stats.Entries, s.Cache.MaxSize)
	fmt.Printf("TTL: %s\n", s.Cache.TTL)
	fmt.Printf("Keys: %v\n", s.Cache.Keys)
	fmt.Printf("Hits: %d  Misses: %d  Evictions: %d  Expirations: %d\n",
		s.Cache.Stats.Hits, s.Cache.Stats.Misses, s.Cache.Stats.Evictions, s.Cache.Stats.Expirations)

	fmt.Println("\nAccess Token:")
	switch {
	case !s.Token.HasToken:
		fmt.Println("  Not fetched yet")
	case s.Token.Valid:
		fmt.Printf("  Valid until %s\n", s.Token.ExpiresAt.Local().Format(time.RFC3339))
	default:
		fmt.Println("  Expired (refreshed on next fetch)")
	}
	fmt.Printf("\nEvent Subscribers: %d\n\n", s.Subscribers)
}

func list(ctx context.Context, client *httpapi.Client, codes []string) {
	if len(codes) > 0 {
		resp, err := client.Cached(ctx, codes)
		if err != nil {
			fail(err)
		}
		printEntryMap(resp.Entries)
		return
	}

	s, err := client.Status(ctx)
	if err != nil {
		fail(err)
	}
	if len(s.Cache.Entries) == 0 {
		fmt.Println("Cache is empty")
		return
	}
	printEntries(s.Cache.Entries)
}

func evict(ctx context.Context, client *httpapi.Client, code string) {
	if err := client.Remove(ctx, code); err != nil {
		fail(err)
	}
	fmt.Printf("Removed %s\n", code)
}

func clearCache(ctx context.Context, client *httpapi.Client) {
	if err := client.Clear(ctx); err != nil {
		fail(err)
	}
	fmt.Println("Cache cleared")
}

func refresh(ctx context.Context, client *httpapi.Client, codes []string) {
	resp, err := client.Refresh(ctx, codes)
	if err != nil {
		fail(err)
	}
	printEntryMap(resp.Entries)
	if len(resp.Missing) > 0 {
		fmt.Printf("\nNo song for: %v\n", resp.Missing)
	}
	if resp.Interrupted {
		fmt.Println("Refresh was interrupted; results are partial")
	}
}

func printEntries(entries []regional.Entry) {
	for _, e := range entries {
		fmt.Printf("%s  %-24s %s - %s (%s)  fetched %s\n",
			e.CountryCode, e.CountryName, e.Payload.ArtistNames(), e.Payload.Name,
			e.Payload.DurationFormatted(), e.FetchedAt.Local().Format(time.TimeOnly))
	}
}

func printEntryMap(entries map[string]regional.Entry) {
	sorted := make([]regional.Entry, 0, len(entries))
	for _, e := range entries {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CountryCode < sorted[j].CountryCode })
	printEntries(sorted)
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

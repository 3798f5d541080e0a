// Manual check of the three suggestion endpoints.
// Queries each engine directly (no proxy) for a few seeds and prints what
// comes back, to check whether an endpoint or its response format changed.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/kwharvest/internal/proxy"
	"github.com/ppiankov/kwharvest/internal/suggest"
)

func main() {
	fmt.Println("=== Suggestion Endpoint Check ===")

	seeds := os.Args[1:]
	if len(seeds) == 0 {
		seeds = []string{"dre", "sho", "hat"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := suggest.NewClient(suggest.Options{Timeout: 10 * time.Second})
	fmt.Printf("User-Agent: %s\n\n", client.UserAgent())
	px := proxy.Config{}

	failed := 0
	for _, s := range seeds {
		fmt.Printf("Seed: %q\n", s)
		fmt.Println(strings.Repeat("-", 60))

		report := func(engine string, keywords []string, err error) {
			switch {
			case err != nil:
				failed++
				kind := "decode"
				if suggest.IsNetworkError(err) {
					kind = "network"
				}
				fmt.Printf("  %-7s %s error: %v\n", engine, kind, err)
			case len(keywords) == 0:
				fmt.Printf("  %-7s no suggestions\n", engine)
			default:
				fmt.Printf("  %-7s %d suggestions: %s\n", engine, len(keywords), strings.Join(keywords, " | "))
			}
		}

		kw, err := client.LookupMarketplace(ctx, s, px)
		report("amazon", kw, err)
		kw, err = client.LookupAuction(ctx, s, "US", px)
		report("ebay", kw, err)
		kw, err = client.LookupSearchEngine(ctx, s, "en", "US", "sh", px)
		report("google", kw, err)

		fmt.Println()
	}

	fmt.Printf("=== Check Complete: %d failed lookups ===\n", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// Command clearcache deletes price-comparison cache entries from Redis.
//
//	clearcache --keys price:BTC-USDT okx:symbols
//	clearcache --confirm
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/config"
	"github.com/mmfshirokan/PriceCompare/internal/repository"
	log "github.com/sirupsen/logrus"
)

func main() {
	conf := config.New()
	conf.SetupLogger()

	if conf.RedisURL == "" {
		log.Error("REDIS_URL is not set; nothing to clear")
		os.Exit(1)
	}

	client, err := repository.NewClient(conf.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	os.Exit(run(ctx, os.Args[1:], repository.NewRedis(client, conf.CachePrefix), os.Stdout))
}

func run(ctx context.Context, args []string, cache repository.Cache, out io.Writer) int {
	flags := flag.NewFlagSet("clearcache", flag.ContinueOnError)
	flags.SetOutput(out)
	keys := flags.Bool("keys", false, "delete only the keys given as arguments")
	confirm := flags.Bool("confirm", false, "required to clear every entry")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if *keys {
		if flags.NArg() == 0 {
			fmt.Fprintln(out, "No keys given.")
			return 1
		}

		fmt.Fprintf(out, "Deleting %d key(s) from cache...\n", flags.NArg())
		for _, key := range flags.Args() {
			n, err := cache.Delete(ctx, key)
			if err != nil {
				fmt.Fprintf(out, "Failed to delete %s: %v\n", key, err)
				return 1
			}
			fmt.Fprintf(out, "Deleted key: %s -> %t\n", key, n > 0)
		}
		fmt.Fprintln(out, "Done.")

		return 0
	}

	fmt.Fprintln(out, "About to clear the entire cache.")
	if !*confirm {
		fmt.Fprintln(out, "Operation aborted. Re-run with --confirm to proceed.")
		return 1
	}

	if err := cache.Clear(ctx); err != nil {
		fmt.Fprintf(out, "Failed to clear cache: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "Cache cleared.")

	return 0
}

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/uma-universal-money-address/uma-settlement-go/internal/config"
	"github.com/uma-universal-money-address/uma-settlement-go/internal/metrics"
	"github.com/uma-universal-money-address/uma-settlement-go/uma"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/rates"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/settlement"
)

var quoteCommand = &cli.Command{
	Name:        "quote",
	Usage:       "Print current prices and multipliers",
	Description: "Fetch the configured price source once and print the multiplier of every catalog asset.",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "currency",
			Usage: "currency to compute multipliers for, repeatable",
			Value: cli.NewStringSlice("USD"),
		},
		&cli.BoolFlag{
			Name:  "fixed",
			Usage: "use the fixed price table instead of the configured source",
		},
	},
	Action: printQuote,
}

func printQuote(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	if ctx.Bool("fixed") {
		cfg.Oracle.Source = config.OracleSourceFixed
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	oracle, err := buildOracle(cfg, clock.NewDefaultClock(), log, metrics.Nop{})
	if err != nil {
		return err
	}
	return writeQuote(ctx, ctx.App.Writer, oracle, ctx.StringSlice("currency"))
}

func writeQuote(ctx *cli.Context, w io.Writer, oracle *rates.Oracle, currencies []string) error {
	assets := make(map[string]struct{})
	for _, entry := range settlement.Default().Entries() {
		assets[entry.Asset] = struct{}{}
	}
	symbols := make([]string, 0, len(assets))
	for asset := range assets {
		symbols = append(symbols, asset)
	}
	sort.Strings(symbols)

	quotes, err := oracle.GetPrices(ctx.Context, symbols)
	for _, symbol := range symbols {
		quote, ok := quotes[symbol]
		if !ok {
			fmt.Fprintf(w, "%-6s price unavailable\n", symbol)
			continue
		}
		fmt.Fprintf(w, "%-6s last=%s bid=%s ask=%s\n", symbol, quote.LastPrice, quote.Bid, quote.Ask)
	}
	if err != nil && len(quotes) == 0 {
		return err
	}

	for _, entry := range settlement.Default().Entries() {
		multipliers, err := oracle.GetMultipliers(ctx.Context, entry.Asset, currencies)
		if err != nil {
			fmt.Fprintf(w, "%-10s %-14s error: %v\n", entry.Layer, entry.AssetIdentifier, err)
			continue
		}
		codes := make([]string, 0, len(multipliers))
		for code := range multipliers {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			parts = append(parts, fmt.Sprintf("%s=%d", code, multipliers[code]))
		}
		fmt.Fprintf(w, "%-10s %-14s %s\n", entry.Layer, entry.AssetIdentifier, strings.Join(parts, " "))
	}
	return nil
}

var lnurlCommand = &cli.Command{
	Name:      "lnurl",
	Usage:     "Encode an UMA address as an LNURL, or decode an LNURL",
	ArgsUsage: "<user@domain | lnurl>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "decode",
			Usage: "decode the argument instead of encoding it",
		},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("expected exactly one argument")
		}
		arg := ctx.Args().First()
		var out string
		var err error
		if ctx.Bool("decode") {
			out, err = uma.DecodeLnurl(arg)
		} else {
			out, err = uma.LnurlForAddress(arg)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(ctx.App.Writer, out)
		return nil
	},
}

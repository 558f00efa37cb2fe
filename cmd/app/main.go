// energy-feeds ingests Brazilian energy-market feeds into a relational store.
//
// Usage:
//
//	app serve
//	app ingest spreadsheets --kind cmo --from 2020 --to 2024
//	app ingest product pld_horario_submercado
//	app ingest all [--full]
//	app products --institution ons
//	app resources pld_horario_submercado
//	app migrate
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "energy-feeds",
		Usage: "Ingest CCEE and ONS open data into a relational store",
		Commands: []*cli.Command{
			serveCommand(),
			ingestCommand(),
			productsCommand(),
			resourcesCommand(),
			migrateCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

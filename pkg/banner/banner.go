package banner

import (
	"fmt"

	"chatdb/pkg/config"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗██████╗ ██████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔══██╗██╔══██╗
██║     ███████║███████║   ██║   ██║  ██║██████╔╝
██║     ██╔══██║██╔══██║   ██║   ██║  ██║██╔══██╗
╚██████╗██║  ██║██║  ██║   ██║   ██████╔╝██████╔╝
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═════╝ ╚═════╝
`

// Print renders the startup banner with the effective config and where it
// came from.
func Print(cfg *config.Config, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("DB Path:         %s\n", cfg.Storage.DBPath)
	fmt.Printf("Metrics:         %s\n", cfg.Metrics.Address)
	fmt.Printf("Default channel: %s\n", cfg.Chat.DefaultChannel)
	fmt.Printf("Log level:       %s\n", cfg.Logging.Level)
	if version != "" {
		fmt.Printf("Version:         %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources:  %s\n", sources)
	}
	fmt.Println("\n== Production? =================================================")
	if cfg.Storage.DBPath == "./.database" {
		fmt.Println("- DB Path: default (set a proper storage path with --db)")
	} else {
		fmt.Println("- DB Path: set")
	}
	fmt.Printf("- Search cap: %d results, %d candidate scans\n", cfg.Limits.SearchResults, cfg.Limits.CandidateScan)

	fmt.Println("\n== Logs: =================================================")
}

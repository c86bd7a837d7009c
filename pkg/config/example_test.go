package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/shopsync/pkg/config"
)

// ExampleDefault shows the defaults a process starts from.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Interval: %s\n", cfg.Interval())
	fmt.Printf("Page Size: %d\n", cfg.Sync.PageSize)
	fmt.Printf("Resources: %v\n", cfg.Sync.Resources)

	// Output:
	// Interval: 5m0s
	// Page Size: 250
	// Resources: [customers products orders inventory]
}

// ExampleConfig_Validate shows how to validate a configuration before use.
func ExampleConfig_Validate() {
	cfg := config.Default()
	cfg.Shopify.ShopName = "demo"
	cfg.Shopify.AccessToken = "shpat_example"
	cfg.Sync.Pagination = "link"

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	fmt.Println("Configuration is valid!")

	cfg.Sync.IntervalMinutes = 0
	fmt.Println(cfg.Validate())

	// Output:
	// Configuration is valid!
	// config: sync.interval_minutes must be positive
}

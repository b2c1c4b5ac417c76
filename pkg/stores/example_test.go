package stores_test

import (
	"context"
	"fmt"
	"log"

	"github.com/openfroyo/firecontain/pkg/scenario"
	"github.com/openfroyo/firecontain/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_SaveRecord archives runs through a scenario.Runner.
func ExampleSQLiteStore_SaveRecord() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	runner := scenario.NewRunner(scenario.WithRecorder(store))
	_, err := runner.Run(ctx, &scenario.Scenario{
		Name:       "grass",
		ReportSize: 20,
		ReportRate: 22,
		Resources: []scenario.ResourceSpec{
			{Description: "Engine 1", Duration: 8, Production: 66},
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	counts, err := store.StatusCounts(ctx, "grass")
	if err != nil {
		log.Fatal(err)
	}
	for _, c := range counts {
		fmt.Printf("%s: %d\n", c.Status, c.Runs)
	}
	// Output: contained: 1
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"rapidresponse/internal/common/config"
	"rapidresponse/internal/common/database"
	"rapidresponse/internal/emergency"
	"rapidresponse/internal/enrichment"
	"rapidresponse/internal/models"
	us "rapidresponse/internal/workers/emergency/update-status"
	pr "rapidresponse/internal/workers/intake/process-report"
	pe "rapidresponse/internal/workers/notification/publish-event"
	"rapidresponse/pkg/registry"

	"github.com/spf13/cobra"
)

// servedTaskTypes are the job types cmd/rapidresponse can register.
var servedTaskTypes = []string{pr.TaskType, us.TaskType, pe.TaskType}

var rootCmd = &cobra.Command{
	Use:           "ops",
	Short:         "RapidResponse operational updates",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 2*time.Minute)
}

func registerCommands() {
	validateCmd := &cobra.Command{
		Use:   "registry-validate",
		Short: "Check the job registry against the served task types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("path")
			return validateRegistry(path)
		},
	}
	validateCmd.Flags().String("path", "configs/job-registry.json", "path to the job registry")

	indexCmd := &cobra.Command{
		Use:   "facilities-index",
		Short: "Create the facility search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			return createFacilityIndex(ctx)
		},
	}

	loadCmd := &cobra.Command{
		Use:   "facilities-load",
		Short: "Bulk load facilities into the search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			ctx, cancel := commandContext(cmd)
			defer cancel()
			return loadFacilities(ctx, file)
		},
	}
	loadCmd.Flags().String("file", "", "JSON array of facilities to load")
	_ = loadCmd.MarkFlagRequired("file")

	availCmd := &cobra.Command{
		Use:   "availability-set",
		Short: "Record responder service availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			service, _ := flags.GetString("service")
			status, _ := flags.GetString("status")
			units, _ := flags.GetInt("units")
			a := models.ServiceAvailability{
				ServiceType:    service,
				Status:         models.ServiceStatus(status),
				AvailableUnits: units,
				UpdatedAt:      time.Now().UTC(),
			}
			if flags.Changed("avg") {
				avg, _ := flags.GetInt("avg")
				a.AverageResponseTime = &avg
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			return setAvailability(ctx, a)
		},
	}
	availCmd.Flags().String("service", "", "service type (FIRE, MEDICAL, POLICE, RESCUE)")
	availCmd.Flags().String("status", "active", "status (active, limited, inactive)")
	availCmd.Flags().Int("units", 0, "available units")
	availCmd.Flags().Int("avg", 0, "average response time in minutes, left unknown when omitted")
	_ = availCmd.MarkFlagRequired("service")

	rootCmd.AddCommand(validateCmd, indexCmd, loadCmd, availCmd)
}

func validateRegistry(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	problems := registry.Validate(reg, servedTaskTypes)
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("registry validation failed with %d problem(s)", len(problems))
	}
	fmt.Printf("Registry validation passed (%d jobs).\n", len(reg.Jobs))
	return nil
}

func elasticFromConfig() (*database.ElasticsearchClient, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Elasticsearch.GetURL() == "" {
		return nil, nil, fmt.Errorf("no elasticsearch address configured")
	}
	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		return nil, nil, err
	}
	return es, cfg, nil
}

func createFacilityIndex(ctx context.Context) error {
	es, cfg, err := elasticFromConfig()
	if err != nil {
		return err
	}
	created, err := enrichment.EnsureFacilityIndex(ctx, es.Client, cfg.Enrichment.FacilityIndex)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Created index %s\n", cfg.Enrichment.FacilityIndex)
	} else {
		fmt.Printf("Index %s already exists\n", cfg.Enrichment.FacilityIndex)
	}
	return nil
}

func loadFacilities(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var facilities []models.Facility
	if err := json.Unmarshal(data, &facilities); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for i, f := range facilities {
		if f.Name == "" || f.Kind == "" || !f.Location.Valid() {
			return fmt.Errorf("facility %d: name, kind and a valid location are required", i)
		}
	}

	es, cfg, err := elasticFromConfig()
	if err != nil {
		return err
	}
	if _, err := enrichment.EnsureFacilityIndex(ctx, es.Client, cfg.Enrichment.FacilityIndex); err != nil {
		return err
	}
	if err := enrichment.IndexFacilities(ctx, es.Client, cfg.Enrichment.FacilityIndex, facilities); err != nil {
		return err
	}
	fmt.Printf("Loaded %d facilities into %s\n", len(facilities), cfg.Enrichment.FacilityIndex)
	return nil
}

func setAvailability(ctx context.Context, a models.ServiceAvailability) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	saved, err := emergency.NewAvailabilityStore(pg.DB).Upsert(ctx, a)
	if err != nil {
		return err
	}
	fmt.Printf("%s is %s with %d unit(s) available\n", saved.ServiceType, saved.Status, saved.AvailableUnits)
	return nil
}

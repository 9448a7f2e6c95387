package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

// seedDocument is the YAML layout accepted by the seed command.
type seedDocument struct {
	Technicians []seedTechnician `yaml:"technicians"`
	Services    []seedService    `yaml:"services"`
	Clients     []seedClient     `yaml:"clients"`
	Blocks      []seedBlock      `yaml:"blocks"`
}

type seedTechnician struct {
	ID               string         `yaml:"id"`
	LocationID       string         `yaml:"location_id"`
	DisplayName      string         `yaml:"display_name"`
	Hours            []seedHours    `yaml:"hours"`
	ServiceDurations map[string]int `yaml:"service_durations"`
}

type seedHours struct {
	Days  []string `yaml:"days"`
	Start string   `yaml:"start"`
	End   string   `yaml:"end"`
}

type seedService struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	DurationMinutes int    `yaml:"duration_minutes"`
	BufferMinutes   int    `yaml:"buffer_minutes"`
}

type seedClient struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
}

type seedBlock struct {
	ID           string         `yaml:"id"`
	TechnicianID string         `yaml:"technician_id"`
	Title        string         `yaml:"title"`
	Type         string         `yaml:"type"`
	Start        time.Time      `yaml:"start"`
	End          time.Time      `yaml:"end"`
	Rule         string         `yaml:"rule"`
	Deleted      []string       `yaml:"deleted"`
	Modified     []seedOverride `yaml:"modified"`
}

// seedOverride replaces the series instance on Date.
type seedOverride struct {
	Date  string    `yaml:"date"`
	ID    string    `yaml:"id"`
	Title string    `yaml:"title"`
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(name string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if day, ok := weekdays[key]; ok {
		return day, nil
	}
	// Three letter forms such as "mon".
	for full, day := range weekdays {
		if len(key) == 3 && strings.HasPrefix(full, key) {
			return day, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

func readSeedDocument(path string) (seedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return seedDocument{}, fmt.Errorf("read seed file: %w", err)
	}
	var doc seedDocument
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return seedDocument{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return doc, nil
}

type seedCounts struct {
	technicians int
	schedules   int
	services    int
	clients     int
	blocks      int
	exceptions  int
}

// apply writes the document through the store's admin operations. Services are
// written before technicians so duration overrides can reference them.
func (doc seedDocument) apply(ctx context.Context, store persistence.Store) (seedCounts, error) {
	var counts seedCounts

	for _, s := range doc.Services {
		service := domain.Service{ID: s.ID, Name: s.Name, DurationMinutes: s.DurationMinutes, BufferMinutes: s.BufferMinutes}
		if err := store.SaveService(ctx, service); err != nil {
			return counts, fmt.Errorf("seed service %s: %w", s.ID, err)
		}
		counts.services++
	}

	for _, t := range doc.Technicians {
		technician := domain.Technician{ID: t.ID, LocationID: t.LocationID, DisplayName: t.DisplayName}
		if err := store.SaveTechnician(ctx, technician); err != nil {
			return counts, fmt.Errorf("seed technician %s: %w", t.ID, err)
		}
		counts.technicians++

		for _, hours := range t.Hours {
			for _, name := range hours.Days {
				day, err := parseWeekday(name)
				if err != nil {
					return counts, fmt.Errorf("seed hours of %s: %w", t.ID, err)
				}
				schedule := domain.WorkingSchedule{
					TechnicianID: t.ID,
					DayOfWeek:    day,
					IsWorking:    true,
					StartTime:    hours.Start,
					EndTime:      hours.End,
				}
				if err := store.SaveWorkingSchedule(ctx, schedule); err != nil {
					return counts, fmt.Errorf("seed schedule %s/%s: %w", t.ID, day, err)
				}
				counts.schedules++
			}
		}
		for serviceID, minutes := range t.ServiceDurations {
			if err := store.SaveServiceOverride(ctx, t.ID, serviceID, minutes); err != nil {
				return counts, fmt.Errorf("seed duration %s/%s: %w", t.ID, serviceID, err)
			}
		}
	}

	for _, c := range doc.Clients {
		if err := store.SaveClient(ctx, domain.Client{ID: c.ID, DisplayName: c.DisplayName}); err != nil {
			return counts, fmt.Errorf("seed client %s: %w", c.ID, err)
		}
		counts.clients++
	}

	for _, b := range doc.Blocks {
		blockType := domain.BlockType(strings.ToUpper(b.Type))
		if blockType == "" {
			blockType = domain.BlockOther
		}
		block := domain.Block{
			ID:             b.ID,
			TechnicianID:   b.TechnicianID,
			Title:          b.Title,
			Type:           blockType,
			Start:          b.Start,
			End:            b.End,
			RecurrenceRule: b.Rule,
			IsActive:       true,
		}
		if err := store.SaveBlock(ctx, block); err != nil {
			return counts, fmt.Errorf("seed block %s: %w", b.ID, err)
		}
		counts.blocks++

		for _, date := range b.Deleted {
			if err := store.DeleteBlockInstance(ctx, b.ID, date); err != nil {
				return counts, fmt.Errorf("seed deleted instance %s/%s: %w", b.ID, date, err)
			}
			counts.exceptions++
		}
		for _, o := range b.Modified {
			override := domain.Block{
				ID:       o.ID,
				Title:    o.Title,
				Start:    o.Start,
				End:      o.End,
				IsActive: true,
			}
			if override.Title == "" {
				override.Title = b.Title
			}
			if err := store.ModifyBlockInstance(ctx, b.ID, o.Date, override); err != nil {
				return counts, fmt.Errorf("seed modified instance %s/%s: %w", b.ID, o.Date, err)
			}
			counts.exceptions++
		}
	}
	return counts, nil
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Load technicians, hours, services, clients and blocks from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			doc, err := readSeedDocument(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg.Store, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := doc.apply(cmd.Context(), store)
			if err != nil {
				return err
			}
			logger.Info("seed applied",
				"technicians", counts.technicians,
				"schedules", counts.schedules,
				"services", counts.services,
				"clients", counts.clients,
				"blocks", counts.blocks,
				"exceptions", counts.exceptions)
			return nil
		},
	}
}

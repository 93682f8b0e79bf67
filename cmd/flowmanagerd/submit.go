package main

import (
	"fmt"
	"os"

	"github.com/cuemby/flowexec/internal/config"
	"github.com/cuemby/flowexec/internal/tasks"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Create a task from a YAML process definition",
	Long: `Submit reads a YAML task definition, assigns it a fresh task ID, and
persists it to the configured task store in RESOLVING status. It does not
trigger a scan itself; send a COMMUNICATE command (or wait for the next
scheduled one) against a running manager for the task to be picked up.`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringP("file", "f", "", "YAML file describing the task to submit (required)")
	submitCmd.Flags().String("config", "", "path to YAML configuration file")
	_ = submitCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(submitCmd)
}

type taskDefinition struct {
	Name    string `yaml:"name"`
	Process struct {
		Name            string `yaml:"name"`
		Slug            string `yaml:"slug"`
		RunLanguage     string `yaml:"run_language"`
		RunProgram      string `yaml:"run_program"`
		SchedulingClass string `yaml:"scheduling_class"`
	} `yaml:"process"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	configPath, _ := cmd.Flags().GetString("config")

	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read task definition: %w", err)
	}
	var def taskDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return fmt.Errorf("failed to parse task definition: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := tasks.NewBoltStore(cfg.Executor.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open task store: %w", err)
	}
	defer store.Close()

	task := &tasks.Task{
		ID:          uuid.New().String(),
		Status:      tasks.StatusResolving,
		DisplayName: def.Name,
		Process: tasks.Process{
			Name:            def.Process.Name,
			Slug:            def.Process.Slug,
			RunLanguage:     def.Process.RunLanguage,
			RunProgram:      def.Process.RunProgram,
			SchedulingClass: tasks.SchedulingClass(def.Process.SchedulingClass),
		},
	}
	if err := store.Create(task); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	fmt.Println(task.ID)
	return nil
}

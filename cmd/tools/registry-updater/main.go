// cmd/tools/registry-updater/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"lender-match-workers/internal/common/validation"
	"lender-match-workers/pkg/registry"
)

const defaultRegistryPath = "configs/activity-registry.json"

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	addPath := addCmd.String("path", defaultRegistryPath, "Path to registry file")
	idAdd := addCmd.String("id", "", "Activity ID (e.g., recommend-lender-products)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., Recommend Lender Products)")
	description := addCmd.String("description", "", "Description")
	category := addCmd.String("category", "", "Category (e.g., recommendation)")
	taskType := addCmd.String("taskType", "", "Camunda Task Type (defaults to id)")
	version := addCmd.String("version", "1.0.0", "Version")
	implStatus := addCmd.String("status", "planned", "Implementation Status (planned, in-progress, implemented)")
	errorCodes := addCmd.String("errorCodes", "", "Comma-separated BPMN error codes")

	updatePath := updateCmd.String("path", defaultRegistryPath, "Path to registry file")
	idUpdate := updateCmd.String("id", "", "Activity ID to update")
	field := updateCmd.String("field", "", "Field to update (status, version, timeout, retries, ...)")
	value := updateCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", defaultRegistryPath, "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *displayName == "" || *description == "" || *category == "" {
			fmt.Println("Error: id, displayName, description and category are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		if *taskType == "" {
			*taskType = *idAdd
		}
		activity := registry.Activity{
			ID:                   *idAdd,
			DisplayName:          *displayName,
			Description:          *description,
			Category:             *category,
			Version:              *version,
			TaskType:             *taskType,
			ImplementationStatus: *implStatus,
			InputSchema:          map[string]interface{}{"type": "object"},
			OutputSchema:         map[string]interface{}{"type": "object"},
			ErrorCodes:           splitList(*errorCodes),
			Timeout:              "10s",
			Retries:              3,
			Workflows:            []string{},
			Tags:                 []string{},
		}
		if err := addActivity(*addPath, &activity); err != nil {
			fmt.Printf("Error adding activity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added activity: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateActivity(*updatePath, *idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating activity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated activity %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		n, err := validateRegistry(*validatePath)
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d activities.\n", n)

	case "help":
		fallthrough
	default:
		help()
	}
}

func addActivity(path string, activity *registry.Activity) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		reg = &registry.ActivityRegistry{Version: "1.0.0"}
	}

	if _, exists := reg.FindByID(activity.ID); exists {
		return fmt.Errorf("activity with ID %s already exists", activity.ID)
	}
	reg.Activities = append(reg.Activities, *activity)

	if err := reg.Validate(); err != nil {
		return err
	}
	return reg.Save(path)
}

func updateActivity(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	a, ok := reg.FindByID(id)
	if !ok {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	switch field {
	case "status":
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "displayName":
		a.DisplayName = value
	case "description":
		a.Description = value
	case "category":
		a.Category = value
	case "taskType":
		a.TaskType = value
	case "timeout":
		a.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		a.Retries = retries
	case "errorCodes":
		a.ErrorCodes = splitList(value)
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	return reg.Save(path)
}

// validateRegistry checks the registry structure and compiles every
// input and output schema.
func validateRegistry(path string) (int, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return 0, err
	}

	for _, a := range reg.Activities {
		if len(a.InputSchema) > 0 {
			if _, err := validation.Compile(a.InputSchema); err != nil {
				return 0, fmt.Errorf("activity %s input schema: %w", a.ID, err)
			}
		}
		if len(a.OutputSchema) > 0 {
			if _, err := validation.Compile(a.OutputSchema); err != nil {
				return 0, fmt.Errorf("activity %s output schema: %w", a.ID, err)
			}
		}
	}
	return len(reg.Activities), nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a new activity to the registry
  update   Update an existing activity's field
  validate Validate the registry file and compile its schemas
  help     Show this help message

Examples:
  registry-updater add -id notify-lender-desk -displayName "Notify Lender Desk" -description "Alerts the desk" -category communication -errorCodes NOTIFICATION_SEND_FAILED
  registry-updater update -id notify-lender-desk -field status -value implemented
  registry-updater validate -path configs/activity-registry.json

Use 'registry-updater <command> -h' for more information about a command.
`)
}

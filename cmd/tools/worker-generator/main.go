// cmd/tools/worker-generator/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"lender-match-workers/pkg/registry"
)

// WorkerData holds data for templates
type WorkerData struct {
	Name         string
	PackageName  string
	TaskType     string
	InputSchema  map[string]interface{}
	OutputSchema map[string]interface{}
	ErrorCodes   []string
	Description  string
	Category     string
	Timeout      string
	Retries      int
}

func newWorkerData(a *registry.Activity) WorkerData {
	return WorkerData{
		Name:         a.DisplayName,
		PackageName:  packageName(a.ID),
		TaskType:     a.TaskType,
		InputSchema:  a.InputSchema,
		OutputSchema: a.OutputSchema,
		ErrorCodes:   a.ErrorCodes,
		Description:  a.Description,
		Category:     a.Category,
		Timeout:      a.Timeout,
		Retries:      a.Retries,
	}
}

func packageName(id string) string {
	return strings.ReplaceAll(strings.ToLower(id), "-", "")
}

// parseSchema extracts properties from a JSON schema object
func parseSchema(schemaObj interface{}) map[string]interface{} {
	if schemaMap, ok := schemaObj.(map[string]interface{}); ok {
		if props, exists := schemaMap["properties"]; exists {
			if properties, ok := props.(map[string]interface{}); ok {
				return properties
			}
		}
	}
	return map[string]interface{}{}
}

// goTypeFromJSONType maps JSON schema types to Go types
func goTypeFromJSONType(jsonType interface{}) string {
	jt, _ := jsonType.(string)
	switch jt {
	case "string":
		return "string"
	case "integer":
		return "int"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "object":
		return "map[string]interface{}"
	case "array":
		return "[]interface{}"
	default:
		return "interface{}"
	}
}

// goFieldName turns a camelCase property into an exported field name,
// keeping the usual initialisms upper case.
func goFieldName(prop string) string {
	name := upperFirst(prop)
	for _, initialism := range []string{"Id", "Url", "Arn"} {
		if strings.HasSuffix(name, initialism) {
			name = strings.TrimSuffix(name, initialism) + strings.ToUpper(initialism)
		}
	}
	return name
}

// generateStructFields renders struct fields for the schema properties,
// sorted so regenerating a worker gives a stable diff.
func generateStructFields(properties map[string]interface{}) string {
	names := make([]string, 0, len(properties))
	for prop := range properties {
		names = append(names, prop)
	}
	sort.Strings(names)

	var fields []string
	for _, prop := range names {
		details, ok := properties[prop].(map[string]interface{})
		if !ok {
			continue
		}
		field := fmt.Sprintf("\t%s %s `json:\"%s,omitempty\"`", goFieldName(prop), goTypeFromJSONType(details["type"]), prop)
		if desc, ok := details["description"].(string); ok && desc != "" {
			field += " // " + desc
		}
		fields = append(fields, field)
	}
	return strings.Join(fields, "\n")
}

// goLiteral renders a decoded JSON value as a Go expression.
func goLiteral(v interface{}) string {
	if m, ok := v.(map[string]interface{}); v == nil || (ok && len(m) == 0) {
		return `map[string]interface{}{"type": "object"}`
	}
	return strings.ReplaceAll(fmt.Sprintf("%#v", v), "interface {}", "interface{}")
}

// upperFirst makes the first character uppercase
func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

const handlerTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/handler.go
package {{ .PackageName }}

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"lender-match-workers/internal/common/errors"
	"lender-match-workers/internal/common/logger"
	"lender-match-workers/internal/common/metrics"
)

const (
	TaskType = "{{ .TaskType }}"
)

type Handler struct {
	config       *Config
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		errorHandler: errors.NewErrorHandler(l),
		logger:       l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := ParseInput(job.Variables)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

// ParseInput validates the raw job variables and decodes them.
func ParseInput(variables string) (*Input, error) {
	res, err := inputSchema.Validate(variables)
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	if !res.Valid {
		return nil, errors.NewInvalidInputError(res.Error()).WithMetadata("fields", res.Errors)
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Execute runs {{ .Name }}.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return &Output{}, nil
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}
`

const configTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/config.go
package {{ .PackageName }}

import "time"

type Config struct {
	Timeout time.Duration
}
`

const modelsTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/models.go
package {{ .PackageName }}

type Input struct {
{{- $inputProps := parseSchema .InputSchema }}
{{- if $inputProps }}
{{ generateStructFields $inputProps }}
{{- end }}
}

type Output struct {
{{- $outputProps := parseSchema .OutputSchema }}
{{- if $outputProps }}
{{ generateStructFields $outputProps }}
{{- end }}
}
`

const validationTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/validation.go
package {{ .PackageName }}

import "lender-match-workers/internal/common/validation"

var inputSchema = validation.MustCompile(GetInputSchema())

// GetInputSchema mirrors the {{ .TaskType }} entry in configs/activity-registry.json.
func GetInputSchema() map[string]interface{} {
	return {{ goLiteral .InputSchema }}
}
`

const testTemplate = `package {{ .PackageName }}

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lender-match-workers/internal/common/logger"
)

func TestHandler_Execute(t *testing.T) {
	h := NewHandler(&Config{Timeout: 5 * time.Second}, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{})
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestParseInput_Invalid(t *testing.T) {
	_, err := ParseInput(` + "`[]`" + `)
	assert.Error(t, err)
}
`

const readmeTemplate = `# {{ .Name }} Worker

{{ .Description }}

- **Task type**: {{ .TaskType }}
- **Category**: {{ .Category }}
- **Timeout**: {{ .Timeout }}
- **Retries**: {{ .Retries }}

## Error Codes
{{- if .ErrorCodes }}
{{ range .ErrorCodes }}
- {{ . }}
{{- end }}
{{- else }}

No specific error codes defined.
{{- end }}

## Wiring

Register the handler in cmd/worker-manager/wiring.go:

` + "```go" + `
if config.IsWorkerEnabled(cfg, {{ .PackageName }}.TaskType) {
	wcfg := config.GetWorkerConfig(cfg, {{ .PackageName }}.TaskType)
	handler := {{ .PackageName }}.NewHandler(&{{ .PackageName }}.Config{Timeout: config.GetDuration(wcfg.Timeout)}, log)
	start({{ .PackageName }}.TaskType, handler.Handle)
}
` + "```" + `

and add it to configs/config.yaml:

` + "```yaml" + `
workers:
  {{ .TaskType }}:
    enabled: true
    max_jobs_active: 5
    timeout: 10000
` + "```" + `
`

var templates = map[string]string{
	"handler.go":      handlerTemplate,
	"config.go":       configTemplate,
	"models.go":       modelsTemplate,
	"validation.go":   validationTemplate,
	"handler_test.go": testTemplate,
	"README.md":       readmeTemplate,
}

var funcMap = template.FuncMap{
	"parseSchema":          parseSchema,
	"generateStructFields": generateStructFields,
	"goLiteral":            goLiteral,
}

// generate renders every template into workerDir. Existing files are left
// alone unless force is set.
func generate(data WorkerData, workerDir string, force bool) ([]string, error) {
	if err := os.MkdirAll(workerDir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", workerDir, err)
	}

	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, filename := range names {
		tmpl, err := template.New(filename).Funcs(funcMap).Parse(templates[filename])
		if err != nil {
			return written, fmt.Errorf("parse template %s: %w", filename, err)
		}

		path := filepath.Join(workerDir, filename)
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if !force {
			flags |= os.O_EXCL
		}
		file, err := os.OpenFile(path, flags, 0644)
		if err != nil {
			if os.IsExist(err) {
				fmt.Printf("skipping %s, already exists\n", path)
				continue
			}
			return written, fmt.Errorf("create %s: %w", path, err)
		}

		err = tmpl.Execute(file, data)
		file.Close()
		if err != nil {
			return written, fmt.Errorf("render %s: %w", filename, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func main() {
	activity := flag.String("activity", "", "Activity ID from registry (e.g., notify-lender-desk)")
	outputDir := flag.String("output", "./internal/workers/", "Output directory for the generated worker")
	registryPath := flag.String("registry", "configs/activity-registry.json", "Path to the activity registry JSON file")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	if *activity == "" {
		fmt.Println("Usage: worker-generator --activity <id> [--output <dir>] [--registry <path>] [--force]")
		fmt.Println("\nExample:")
		fmt.Println("  go run ./cmd/tools/worker-generator --activity notify-lender-desk")
		os.Exit(1)
	}

	reg, err := registry.LoadRegistry(*registryPath)
	if err != nil {
		fmt.Printf("Error loading registry from %s: %v\n", *registryPath, err)
		os.Exit(1)
	}

	found, ok := reg.FindByID(*activity)
	if !ok {
		fmt.Printf("Activity '%s' not found in registry %s\n", *activity, *registryPath)
		os.Exit(1)
	}

	data := newWorkerData(found)
	workerDir := filepath.Join(*outputDir, strings.ToLower(data.Category), found.ID)

	written, err := generate(data, workerDir, *force)
	for _, path := range written {
		fmt.Printf("Generated %s\n", path)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nWorker scaffold generated at: %s\n", workerDir)
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  1. Implement Execute in handler.go\n")
	fmt.Printf("  2. Register the worker in cmd/worker-manager/wiring.go\n")
	fmt.Printf("  3. Add configuration to configs/config.yaml\n")
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/KaramelBytes/csvagent/internal/ai"
	"github.com/KaramelBytes/csvagent/internal/analysis"
	"github.com/KaramelBytes/csvagent/internal/anomaly"
	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/chart"
	"github.com/KaramelBytes/csvagent/internal/ingest"
	"github.com/KaramelBytes/csvagent/internal/table"
)

// Tool names exposed to models and MCP clients.
const (
	ToolDescribe  = "describe_dataset"
	ToolHistogram = "draw_histogram"
	ToolScatter   = "draw_scatter"
	ToolOutliers  = "detect_outliers"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeNumber ParamType = "number"
)

// Param describes one tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Args are decoded tool arguments.
type Args map[string]any

// Tool is a dataset operation callable by a model.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Run         func(ctx context.Context, args Args) (any, error)
}

// Schema returns the JSON schema of the tool's parameters.
func (t Tool) Schema() map[string]any {
	props := map[string]any{}
	required := []string{}
	for _, p := range t.Params {
		props[p.Name] = map[string]any{"type": string(p.Type), "description": p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// Definition is the model-facing function declaration.
func (t Tool) Definition() ai.Tool {
	return ai.Tool{Type: "function", Function: ai.FunctionDef{Name: t.Name, Description: t.Description, Parameters: t.Schema()}}
}

// Toolbox binds the analysis tools to one dataset. Calls are serialized so
// chart exports of one dataset never race on a file name.
type Toolbox struct {
	mu            sync.Mutex
	dataset       *ingest.DatasetContext
	engine        table.Engine
	charts        *chart.Renderer
	contamination float64
	tools         []Tool
	produced      []string
}

// NewToolbox returns the tools for ds. contamination is the outlier default.
func NewToolbox(ds *ingest.DatasetContext, engine table.Engine, charts *chart.Renderer, contamination float64) *Toolbox {
	if contamination <= 0 {
		contamination = anomaly.DefaultConfig().Contamination
	}
	tb := &Toolbox{dataset: ds, engine: engine, charts: charts, contamination: contamination}
	tb.tools = []Tool{
		{
			Name:        ToolDescribe,
			Description: "Full descriptive statistics of the current dataset: count, mean, std, min, quartiles, max for numeric columns; count, unique, top, freq for the others.",
			Run:         tb.describe,
		},
		{
			Name:        ToolHistogram,
			Description: "Draw a histogram of one column and return the path of the interactive chart.",
			Params: []Param{
				{Name: "column", Type: TypeString, Description: "Column to plot.", Required: true},
				{Name: "title", Type: TypeString, Description: "Optional chart title."},
			},
			Run: tb.histogram,
		},
		{
			Name:        ToolScatter,
			Description: "Draw a scatter plot of two numeric columns, optionally colored by a third column.",
			Params: []Param{
				{Name: "x", Type: TypeString, Description: "Numeric column on the x axis.", Required: true},
				{Name: "y", Type: TypeString, Description: "Numeric column on the y axis.", Required: true},
				{Name: "color", Type: TypeString, Description: "Optional column used to group points."},
				{Name: "title", Type: TypeString, Description: "Optional chart title."},
			},
			Run: tb.scatter,
		},
		{
			Name:        ToolOutliers,
			Description: "Detect outlier rows with an isolation forest and report their share of the data.",
			Params: []Param{
				{Name: "contamination", Type: TypeNumber, Description: "Expected outlier share in (0, 0.5]. Default 0.05."},
				{Name: "columns", Type: TypeString, Description: "Optional comma-separated numeric columns; all numeric columns when empty."},
			},
			Run: tb.outliers,
		},
	}
	return tb
}

// Dataset is the bound dataset.
func (tb *Toolbox) Dataset() *ingest.DatasetContext { return tb.dataset }

// Tools lists the tools in a fixed order.
func (tb *Toolbox) Tools() []Tool { return tb.tools }

// Definitions returns the model-facing declarations.
func (tb *Toolbox) Definitions() []ai.Tool {
	out := make([]ai.Tool, len(tb.tools))
	for i, t := range tb.tools {
		out[i] = t.Definition()
	}
	return out
}

// Lookup finds a tool by name.
func (tb *Toolbox) Lookup(name string) (Tool, bool) {
	for _, t := range tb.tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Call runs the named tool with JSON-encoded arguments.
func (tb *Toolbox) Call(ctx context.Context, name, arguments string) (any, error) {
	t, ok := tb.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q: %w", name, apperr.ErrInvalidArgument)
	}
	args := Args{}
	if s := strings.TrimSpace(arguments); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			return nil, fmt.Errorf("tool %s arguments: %v: %w", name, err, apperr.ErrInvalidArgument)
		}
	}
	return tb.Invoke(ctx, t, args)
}

// Invoke runs t with decoded arguments.
func (tb *Toolbox) Invoke(ctx context.Context, t Tool, args Args) (any, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, p := range t.Params {
		if p.Required && args.String(p.Name) == "" {
			return nil, fmt.Errorf("tool %s needs %q: %w", t.Name, p.Name, apperr.ErrInvalidArgument)
		}
	}
	return t.Run(ctx, args)
}

// Charts returns the interactive chart paths produced so far and clears the list.
func (tb *Toolbox) Charts() []string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	out := tb.produced
	tb.produced = nil
	return out
}

func (tb *Toolbox) table() (table.Table, error) { return tb.dataset.Table() }

func (tb *Toolbox) describe(_ context.Context, _ Args) (any, error) {
	res, err := analysis.Describe(tb.dataset.Data, tb.engine)
	if err != nil {
		return nil, err
	}
	return map[string]any{"summary": res.Summary, "message": res.Message}, nil
}

func (tb *Toolbox) chartResult(res *chart.Result) any {
	tb.produced = append(tb.produced, res.Path())
	return map[string]any{"kind": res.Kind, "html_path": res.HTMLPath, "image_path": res.ImagePath}
}

func (tb *Toolbox) histogram(_ context.Context, args Args) (any, error) {
	if tb.charts == nil {
		return nil, fmt.Errorf("charts are disabled: %w", apperr.ErrMissingDependency)
	}
	t, err := tb.table()
	if err != nil {
		return nil, err
	}
	res, err := tb.charts.Histogram(t, args.String("column"), args.String("title"))
	if err != nil {
		return nil, err
	}
	return tb.chartResult(res), nil
}

func (tb *Toolbox) scatter(_ context.Context, args Args) (any, error) {
	if tb.charts == nil {
		return nil, fmt.Errorf("charts are disabled: %w", apperr.ErrMissingDependency)
	}
	t, err := tb.table()
	if err != nil {
		return nil, err
	}
	res, err := tb.charts.Scatter(t, args.String("x"), args.String("y"), args.String("color"), args.String("title"))
	if err != nil {
		return nil, err
	}
	return tb.chartResult(res), nil
}

// maxReportedOutliers bounds the row indices sent back to the model.
const maxReportedOutliers = 50

func (tb *Toolbox) outliers(_ context.Context, args Args) (any, error) {
	c, err := args.Float("contamination", tb.contamination)
	if err != nil {
		return nil, err
	}
	res, err := anomaly.Detect(tb.dataset.Data, tb.engine, anomaly.Options{Contamination: c, Columns: args.List("columns")})
	if err != nil {
		return nil, err
	}
	rows := res.Outliers
	if len(rows) > maxReportedOutliers {
		rows = rows[:maxReportedOutliers]
	}
	return map[string]any{
		"contamination": res.Contamination,
		"outlier_count": res.OutlierCount,
		"total_rows":    res.TotalRows,
		"impact_ratio":  res.ImpactRatio,
		"columns":       res.Columns,
		"outlier_rows":  rows,
		"message":       res.Message,
	}, nil
}

// String returns a trimmed string argument, or "".
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Float returns a numeric argument, accepting numbers and numeric strings.
func (a Args) Float(key string, def float64) (float64, error) {
	switch v := a[key].(type) {
	case nil:
		return def, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number, got %q: %w", key, v, apperr.ErrInvalidArgument)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s must be a number: %w", key, apperr.ErrInvalidArgument)
	}
}

// List returns a list argument given as a comma-separated string or an array.
func (a Args) List(key string) []string {
	var raw []string
	switch v := a[key].(type) {
	case string:
		raw = strings.Split(v, ",")
	case []any:
		for _, x := range v {
			raw = append(raw, fmt.Sprint(x))
		}
	case []string:
		raw = v
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

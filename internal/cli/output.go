package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	apierrors "github.com/devrev/bqsync/internal/errors"
	"github.com/devrev/bqsync/internal/model"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The operation ran and failed (sync error, rejected query)
	ExitCommandError = 2 // Bad flags, configuration or unreachable dependencies
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{FormatText, FormatJSON, FormatYAML}

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command results as text, JSON or YAML.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Render writes v in the configured format.
func (f *OutputFormatter) Render(v any) error {
	switch f.Format {
	case FormatJSON:
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return f.renderText(v)
	}
}

// errorOutput is the structured form of a failed command
type errorOutput struct {
	Status    string `json:"status" yaml:"status"`
	ErrorCode string `json:"error_code" yaml:"error_code"`
	Message   string `json:"message" yaml:"message"`
}

// RenderError writes err in the configured format.
func (f *OutputFormatter) RenderError(err error) error {
	code := string(apierrors.GetCode(err))
	if f.Format == FormatJSON || f.Format == FormatYAML {
		return f.Render(errorOutput{Status: "error", ErrorCode: code, Message: err.Error()})
	}
	_, werr := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, err.Error())
	return werr
}

func (f *OutputFormatter) renderText(v any) error {
	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)

	switch v := v.(type) {
	case *model.SyncJob:
		writeSyncJob(tw, v)
	case *model.DatasetSyncJob:
		fmt.Fprintf(tw, "status:\t%s\n", v.Status)
		if v.Message != "" {
			fmt.Fprintf(tw, "message:\t%s\n", v.Message)
		}
		fmt.Fprintf(tw, "tables_synced:\t%d\n", v.TablesSynced)
		fmt.Fprintf(tw, "duration:\t%s\n", v.Duration)
		if len(v.Results) > 0 {
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(f.Writer)
			fmt.Fprintln(tw, "TABLE\tSTATUS\tROWS\tDURATION\tMESSAGE")
			for _, r := range v.Results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.TableID, r.Status, optionalInt(r.RowsSynced), r.Duration, r.Message)
			}
		}
	case []model.TableStatus:
		if len(v) == 0 {
			fmt.Fprintln(tw, "No tables synced")
			break
		}
		fmt.Fprintln(tw, "DATASET\tTABLE\tROWS\tSIZE\tLAST SYNC\tLAST ANALYZED")
		for _, s := range v {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
				s.DatasetID, s.TableID, s.RowCount, s.Size, formatTime(s.LastSync), formatTime(s.LastAnalyzed))
		}
	case *model.TableAnalysis:
		st := v.TableStats
		fmt.Fprintf(tw, "total_size:\t%s\n", st.TotalSize)
		fmt.Fprintf(tw, "table_size:\t%s\n", st.TableSize)
		fmt.Fprintf(tw, "index_size:\t%s\n", st.IndexSize)
		fmt.Fprintf(tw, "row_count:\t%d\n", st.RowCount)
		fmt.Fprintf(tw, "dead_tuples:\t%d\n", st.DeadTuples)
		fmt.Fprintf(tw, "last_vacuum:\t%s\n", formatTime(st.LastVacuum))
		fmt.Fprintf(tw, "last_analyze:\t%s\n", formatTime(st.LastAnalyze))
		if len(v.Columns) > 0 {
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(f.Writer)
			fmt.Fprintln(tw, "COLUMN\tTYPE\tESTIMATED SIZE")
			for _, c := range v.Columns {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ColumnName, c.DataType, c.EstimatedSize)
			}
		}
	case *model.TableInfo:
		fmt.Fprintf(tw, "row_count:\t%d\n", v.RowCount)
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(f.Writer)
		fmt.Fprintln(tw, "COLUMN\tTYPE")
		columns := make([]string, len(v.Schema))
		for i, s := range v.Schema {
			fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Type)
			columns[i] = s.Name
		}
		if len(v.Preview) > 0 {
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(f.Writer)
			writeRecords(tw, columns, v.Preview)
		}
	case *model.QueryResponse:
		columns := make([]string, len(v.Schema))
		for i, s := range v.Schema {
			columns[i] = s.Name
		}
		writeRecords(tw, columns, v.Rows)
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(f.Writer, "(%d rows)\n", v.TotalRows)
	case *model.DatasetStats:
		fmt.Fprintf(tw, "table_count:\t%d\n", v.TableCount)
		fmt.Fprintf(tw, "total_size_bytes:\t%d\n", v.TotalSizeBytes)
		fmt.Fprintf(tw, "last_modified:\t%s\n", v.LastModified)
		fmt.Fprintf(tw, "created:\t%s\n", v.Created)
	case []string:
		for _, s := range v {
			fmt.Fprintln(tw, s)
		}
	default:
		fmt.Fprintln(tw, v)
	}

	return tw.Flush()
}

func writeSyncJob(w io.Writer, job *model.SyncJob) {
	fmt.Fprintf(w, "status:\t%s\n", job.Status)
	fmt.Fprintf(w, "message:\t%s\n", job.Message)
	if job.RowsSynced != nil {
		fmt.Fprintf(w, "rows_synced:\t%d\n", *job.RowsSynced)
	}
	fmt.Fprintf(w, "duration:\t%s\n", job.Duration)
}

func writeRecords(w io.Writer, columns []string, records []map[string]any) {
	fmt.Fprintln(w, strings.Join(columns, "\t"))
	cells := make([]string, len(columns))
	for _, record := range records {
		for i, c := range columns {
			cells[i] = formatCell(record[c])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		return formatTime(v)
	default:
		return fmt.Sprint(v)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func optionalInt(n *int64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}

// package formatter provides functions to export computed smart lists and refresh history to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/rules"
	"github.com/desertthunder/smartsync/internal/shared"
)

// Row is one exported entry.
type Row struct {
	ID      string           `json:"id"`
	Kind    models.MediaKind `json:"kind"`
	Name    string           `json:"name"`
	Artist  string           `json:"artist,omitempty"`
	Album   string           `json:"album,omitempty"`
	Runtime time.Duration    `json:"runtime"`
}

// ListExport is a smart list together with the entries it currently computes to.
type ListExport struct {
	List           *models.SmartListConfig `json:"list"`
	Rows           []Row                   `json:"entries"`
	TotalRuntime   time.Duration           `json:"totalRuntime"`
	MissingRuntime int                     `json:"missingRuntime"`
}

// NewListExport flattens a selection into export rows.
func NewListExport(cfg *models.SmartListConfig, sel rules.Selection) *ListExport {
	export := &ListExport{
		List:           cfg,
		Rows:           make([]Row, len(sel.Entries)),
		TotalRuntime:   sel.TotalRuntime,
		MissingRuntime: sel.MissingRuntime,
	}
	for i, e := range sel.Entries {
		snap := e.Snapshot()
		runtime, _ := e.Runtime()
		export.Rows[i] = Row{
			ID:      e.ID,
			Kind:    e.Kind,
			Name:    snap.Name,
			Artist:  snap.Artist,
			Album:   snap.Album,
			Runtime: runtime,
		}
	}
	return export
}

// ExportToCSV converts a ListExport to CSV format with columns: ID, Kind, Name, Artist, Album, Runtime
//
// Runtime is written in whole seconds; entries without runtime metadata get an empty cell.
func ExportToCSV(export *ListExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Kind", "Name", "Artist", "Album", "Runtime"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, row := range export.Rows {
		runtime := ""
		if row.Runtime > 0 {
			runtime = strconv.Itoa(int(row.Runtime.Seconds()))
		}
		record := []string{row.ID, string(row.Kind), row.Name, row.Artist, row.Album, runtime}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a ListExport to Markdown format
func ExportToMarkdown(export *ListExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", export.List.Name))

	buf.WriteString(fmt.Sprintf("**Items**: %d\n", len(export.Rows)))
	buf.WriteString(fmt.Sprintf("**Runtime**: %s\n", shared.FormatDuration(export.TotalRuntime)))
	buf.WriteString(fmt.Sprintf("**Visibility**: %s\n", shared.VisibilityString(export.List.Public)))
	if export.MissingRuntime > 0 {
		buf.WriteString(fmt.Sprintf("**Missing runtime**: %d\n", export.MissingRuntime))
	}
	buf.WriteString("\n## Entries\n\n")

	for i, row := range export.Rows {
		buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, rowLabel(row, true)))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a ListExport to plain text format
func ExportToText(export *ListExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Smart list: %s\n", export.List.Name))
	buf.WriteString(fmt.Sprintf("Items: %d (%s)\n\n", len(export.Rows), shared.FormatDuration(export.TotalRuntime)))

	for i, row := range export.Rows {
		buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, rowLabel(row, false)))
	}

	return buf.Bytes(), nil
}

func rowLabel(row Row, detailed bool) string {
	label := row.Name
	if label == "" {
		label = row.ID
	}
	if row.Artist != "" {
		label = row.Artist + " - " + label
	}
	if !detailed {
		return label
	}
	if row.Album != "" {
		label += fmt.Sprintf(" (%s)", row.Album)
	}
	if row.Runtime > 0 {
		label += fmt.Sprintf(" [%s]", shared.FormatDuration(row.Runtime))
	}
	return label
}

// ToMetadataJSON generates a JSON representation of the smart list configuration (without entries)
func ToMetadataJSON(cfg *models.SmartListConfig) ([]byte, error) {
	return shared.MarshalJSON(cfg, true)
}

// ExportRunsToCSV writes refresh history with columns: Sequence, List, Reason, Status, Items, Runtime, Started, Message
func ExportRunsToCSV(runs []*models.RefreshRun) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Sequence", "List", "Reason", "Status", "Items", "Runtime", "Started", "Message"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, run := range runs {
		record := []string{
			strconv.FormatInt(run.Sequence, 10),
			run.ListName,
			string(run.Reason),
			string(run.Status),
			strconv.Itoa(run.ItemCount),
			strconv.FormatInt(run.RuntimeSeconds, 10),
			run.StartedAt.UTC().Format(time.RFC3339),
			run.Message,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	EntriesFile  string
	MetadataFile string
}

// WriteCSVExport exports a list to CSV format with accompanying metadata JSON file.
//
// Defaults to the list ID as the base filename & creates {base}_entries.csv and {base}_metadata.json
func WriteCSVExport(export *ListExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.List.ID
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	entriesFile := baseFilepath + "_entries.csv"
	if err := os.WriteFile(entriesFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(export.List)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		EntriesFile:  entriesFile,
		MetadataFile: metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory string
	Files     []string
}

// WriteMarkdownExport exports a list to Markdown format in a dedicated directory.
//
// Directory name defaults to the list ID.
// Creates {dir}/README.md and {dir}/list.json
func WriteMarkdownExport(export *ListExport, outputDir string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = export.List.ID
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: outputDir, Files: []string{}}

	mdData, err := ExportToMarkdown(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}
	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)

	metadataJSON, err := ToMetadataJSON(export.List)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}
	metaFile := filepath.Join(outputDir, "list.json")
	if err := os.WriteFile(metaFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}
	result.Files = append(result.Files, metaFile)

	return result, nil
}

// WriteTextExport exports a list to plain text format.
//
// Defaults to {list.ID}_entries.txt as the filename.
func WriteTextExport(export *ListExport, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_entries.txt", export.List.ID)
	}

	textData, err := ExportToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

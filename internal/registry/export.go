package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fluxteam/orchestrator-core/internal/models"
	"github.com/fluxteam/orchestrator-core/internal/orcherr"
)

// ExportFormat selects the serialization used by Export.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportYAML     ExportFormat = "yaml"
	ExportMarkdown ExportFormat = "markdown"
)

// exportDoc is the wire shape used for JSON/YAML export: content is
// rendered as a string rather than a raw byte array.
type exportDoc struct {
	ID            string                    `json:"id" yaml:"id"`
	RootID        string                    `json:"root_id" yaml:"root_id"`
	Title         string                    `json:"title" yaml:"title"`
	Type          models.DocumentType       `json:"type" yaml:"type"`
	Status        models.DocumentStatus     `json:"status" yaml:"status"`
	Version       int                       `json:"version" yaml:"version"`
	Creator       string                    `json:"creator" yaml:"creator"`
	Tags          []string                  `json:"tags" yaml:"tags"`
	Dependencies  []string                  `json:"dependencies" yaml:"dependencies"`
	Content       string                    `json:"content" yaml:"content"`
}

func toExportDoc(doc *models.Document) exportDoc {
	tags := make([]string, 0, len(doc.Tags))
	for t := range doc.Tags {
		tags = append(tags, t)
	}
	return exportDoc{
		ID:           doc.ID,
		RootID:       doc.RootID,
		Title:        doc.Title,
		Type:         doc.Type,
		Status:       doc.Status,
		Version:      doc.Version,
		Creator:      doc.Creator,
		Tags:         tags,
		Dependencies: doc.Dependencies,
		Content:      string(doc.Content),
	}
}

// Export renders doc in the requested format (spec.md §6 export surface).
func Export(doc *models.Document, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportJSON:
		out, err := json.MarshalIndent(toExportDoc(doc), "", "  ")
		if err != nil {
			return nil, orcherr.Wrap(orcherr.Fatal, "marshal document as json", err)
		}
		return out, nil

	case ExportYAML:
		out, err := yaml.Marshal(toExportDoc(doc))
		if err != nil {
			return nil, orcherr.Wrap(orcherr.Fatal, "marshal document as yaml", err)
		}
		return out, nil

	case ExportMarkdown:
		return exportMarkdown(doc), nil

	default:
		return nil, orcherr.InvalidArgumentf("unsupported export format %q", format)
	}
}

func exportMarkdown(doc *models.Document) []byte {
	var b strings.Builder
	tags := make([]string, 0, len(doc.Tags))
	for t := range doc.Tags {
		tags = append(tags, t)
	}

	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", doc.ID)
	fmt.Fprintf(&b, "type: %s\n", doc.Type)
	fmt.Fprintf(&b, "status: %s\n", doc.Status)
	fmt.Fprintf(&b, "version: %d\n", doc.Version)
	fmt.Fprintf(&b, "creator: %s\n", doc.Creator)
	if len(tags) > 0 {
		fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(tags, ", "))
	}
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	b.Write(doc.Content)
	if len(doc.Content) == 0 || doc.Content[len(doc.Content)-1] != '\n' {
		b.WriteString("\n")
	}
	return []byte(b.String())
}

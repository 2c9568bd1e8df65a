package convert

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/me/cwl2nf/internal/container"
	"github.com/me/cwl2nf/pkg/model"
)

// Artifact is one file produced by a conversion.
type Artifact struct {
	Name string
	Data []byte
	Perm os.FileMode
}

// Metadata is the JSON document written next to a generated pipeline.
type Metadata struct {
	ID           string                  `json:"id"`
	Input        string                  `json:"input"`
	WorkflowName string                  `json:"workflow_name"`
	Strategy     string                  `json:"strategy"`
	Mode         model.Mode              `json:"mode"`
	Augmented    bool                    `json:"augmented"`
	Tier         string                  `json:"tier,omitempty"`
	Resources    model.ResourceMap       `json:"resources"`
	Containers   model.ContainerMap      `json:"containers"`
	Validation   *model.ValidationResult `json:"validation"`
	Diagnostics  model.Diagnostics       `json:"diagnostics"`
	CreatedAt    time.Time               `json:"created_at"`
}

// Stem returns the file name stem used for a conversion's artifacts.
func Stem(conv *model.Conversion) string {
	stem := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		}
		return '_'
	}, conv.WorkflowName)
	if strings.Trim(stem, ".") == "" {
		return "workflow"
	}
	return stem
}

// Artifacts renders every output file of a conversion. The container pull
// and push scripts are included when scripts is set.
func (c *Converter) Artifacts(conv *model.Conversion, scripts bool) ([]Artifact, error) {
	stem := Stem(conv)

	diags := conv.Diagnostics
	if diags == nil {
		diags = model.Diagnostics{}
	}
	meta, err := json.MarshalIndent(Metadata{
		ID:           conv.ID,
		Input:        conv.Input,
		WorkflowName: conv.WorkflowName,
		Strategy:     conv.Strategy,
		Mode:         conv.Mode,
		Augmented:    conv.Augmented,
		Tier:         conv.Tier,
		Resources:    conv.Resources,
		Containers:   conv.Containers,
		Validation:   conv.Validation,
		Diagnostics:  diags,
		CreatedAt:    conv.CreatedAt,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	manifest, err := json.MarshalIndent(container.NewManifest(conv.Containers), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal container manifest: %w", err)
	}

	out := []Artifact{
		{Name: stem + ".nf", Data: []byte(conv.Pipeline), Perm: 0o644},
		{Name: stem + ".config", Data: []byte(conv.Config), Perm: 0o644},
		{Name: stem + "_metadata.json", Data: append(meta, '\n'), Perm: 0o644},
		{Name: stem + "_resources.txt", Data: []byte(c.Mapper.GenerateReport(conv.Resources)), Perm: 0o644},
		{Name: stem + "_containers.json", Data: append(manifest, '\n'), Perm: 0o644},
	}
	if scripts {
		out = append(out,
			Artifact{Name: "pull_containers.sh", Data: []byte(container.PullScript(conv.Containers)), Perm: 0o755},
			Artifact{Name: "push_containers.sh", Data: []byte(container.PushScript(conv.Containers)), Perm: 0o755},
		)
	}
	return out, nil
}

// WriteArtifacts writes a conversion's artifacts into dir, creating it, and
// returns the written paths.
func (c *Converter) WriteArtifacts(dir string, conv *model.Conversion, scripts bool) ([]string, error) {
	arts, err := c.Artifacts(conv, scripts)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	paths := make([]string, 0, len(arts))
	for _, a := range arts {
		p := filepath.Join(dir, a.Name)
		if err := os.WriteFile(p, a.Data, a.Perm); err != nil {
			return paths, fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	c.logger.Debug("artifacts written", "dir", dir, "files", len(paths))
	return paths, nil
}

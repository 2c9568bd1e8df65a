package ir

import (
	"fmt"
	"strings"
)

// RequirementKind is the bucket a requirement or hint is partitioned into.
type RequirementKind string

const (
	KindDocker   RequirementKind = "docker"
	KindResource RequirementKind = "resource"
	KindSoftware RequirementKind = "software"
	KindOther    RequirementKind = "other"
)

// Requirement is one requirement or hint record, tagged by its class.
// At most one of the variant pointers is set; Fields keeps the original
// record (class included) so the IR can be serialized back losslessly.
type Requirement struct {
	Class string          `json:"class"`
	Kind  RequirementKind `json:"kind"`

	Docker    *DockerRequirement    `json:"docker,omitempty"`
	Resource  *ResourceRequirement  `json:"resource,omitempty"`
	TimeLimit *TimeLimitRequirement `json:"time_limit,omitempty"`
	Software  *SoftwareRequirement  `json:"software,omitempty"`

	Fields map[string]any `json:"fields"`
}

// DockerRequirement names the container for a process.
// Exactly one of DockerPull, DockerImageID or DockerFile is normally set.
type DockerRequirement struct {
	DockerPull      string `json:"docker_pull,omitempty"`
	DockerImageID   string `json:"docker_image_id,omitempty"`
	DockerFile      string `json:"docker_file,omitempty"`
	DockerLoad      string `json:"docker_load,omitempty"`
	OutputDirectory string `json:"output_directory,omitempty"`
}

// ResourceRequirement holds compute requests. Values are kept as decoded:
// numbers, numeric strings, unit strings or expressions.
type ResourceRequirement struct {
	CoresMin  any `json:"cores_min,omitempty"`
	CoresMax  any `json:"cores_max,omitempty"`
	RamMin    any `json:"ram_min,omitempty"`
	RamMax    any `json:"ram_max,omitempty"`
	TmpdirMin any `json:"tmpdir_min,omitempty"`
	TmpdirMax any `json:"tmpdir_max,omitempty"`
	OutdirMin any `json:"outdir_min,omitempty"`
	OutdirMax any `json:"outdir_max,omitempty"`
}

// TimeLimitRequirement is the ToolTimeLimit record; Timelimit is seconds or an expression.
type TimeLimitRequirement struct {
	Timelimit any `json:"timelimit,omitempty"`
}

// SoftwareRequirement lists software packages a process needs.
type SoftwareRequirement struct {
	Packages []SoftwarePackage `json:"packages,omitempty"`
}

// SoftwarePackage is one entry of a SoftwareRequirement.
type SoftwarePackage struct {
	Package string   `json:"package"`
	Version []string `json:"version,omitempty"`
}

// RequirementSet partitions requirement records by kind, preserving input order.
type RequirementSet struct {
	Docker   []Requirement `json:"docker"`
	Resource []Requirement `json:"resource"`
	Software []Requirement `json:"software"`
	Other    []Requirement `json:"other"`
}

// Classify buckets a class discriminator by case-insensitive substring match.
// Hint sets have no software bucket; pass withSoftware=false for them.
func Classify(class string, withSoftware bool) RequirementKind {
	c := strings.ToLower(class)
	switch {
	case strings.Contains(c, "docker"):
		return KindDocker
	case withSoftware && strings.Contains(c, "software"):
		return KindSoftware
	case strings.Contains(c, "resource"):
		return KindResource
	default:
		return KindOther
	}
}

// NewRequirement builds the tagged record for one raw requirement map.
func NewRequirement(raw map[string]any) Requirement {
	class := stringValue(raw["class"])
	req := Requirement{
		Class:  class,
		Kind:   Classify(class, true),
		Fields: raw,
	}

	switch req.Kind {
	case KindDocker:
		req.Docker = &DockerRequirement{
			DockerPull:      stringValue(raw["dockerPull"]),
			DockerImageID:   stringValue(raw["dockerImageId"]),
			DockerFile:      stringValue(raw["dockerFile"]),
			DockerLoad:      stringValue(raw["dockerLoad"]),
			OutputDirectory: stringValue(raw["dockerOutputDirectory"]),
		}
	case KindResource:
		req.Resource = &ResourceRequirement{
			CoresMin:  raw["coresMin"],
			CoresMax:  raw["coresMax"],
			RamMin:    raw["ramMin"],
			RamMax:    raw["ramMax"],
			TmpdirMin: raw["tmpdirMin"],
			TmpdirMax: raw["tmpdirMax"],
			OutdirMin: raw["outdirMin"],
			OutdirMax: raw["outdirMax"],
		}
	case KindSoftware:
		req.Software = &SoftwareRequirement{Packages: parsePackages(raw["packages"])}
	default:
		if strings.Contains(strings.ToLower(class), "timelimit") {
			req.TimeLimit = &TimeLimitRequirement{Timelimit: raw["timelimit"]}
		}
	}
	return req
}

// Partition buckets requirements into a RequirementSet.
// With withSoftware=false, software records land in Other.
func Partition(reqs []Requirement, withSoftware bool) RequirementSet {
	set := RequirementSet{
		Docker:   []Requirement{},
		Resource: []Requirement{},
		Software: []Requirement{},
		Other:    []Requirement{},
	}
	for _, r := range reqs {
		switch Classify(r.Class, withSoftware) {
		case KindDocker:
			set.Docker = append(set.Docker, r)
		case KindSoftware:
			set.Software = append(set.Software, r)
		case KindResource:
			set.Resource = append(set.Resource, r)
		default:
			set.Other = append(set.Other, r)
		}
	}
	return set
}

// All returns every record of the set in bucket order docker, software, resource, other.
func (s RequirementSet) All() []Requirement {
	all := make([]Requirement, 0, len(s.Docker)+len(s.Software)+len(s.Resource)+len(s.Other))
	all = append(all, s.Docker...)
	all = append(all, s.Software...)
	all = append(all, s.Resource...)
	all = append(all, s.Other...)
	return all
}

func parsePackages(v any) []SoftwarePackage {
	var pkgs []SoftwarePackage
	switch p := v.(type) {
	case []any:
		for _, item := range p {
			switch e := item.(type) {
			case map[string]any:
				pkgs = append(pkgs, SoftwarePackage{
					Package: stringValue(e["package"]),
					Version: stringList(e["version"]),
				})
			case string:
				pkgs = append(pkgs, SoftwarePackage{Package: e})
			}
		}
	case map[string]any:
		// Map form: {samtools: {version: ["1.9"]}} or {samtools: "1.9"}.
		for _, name := range sortedKeys(p) {
			pkg := SoftwarePackage{Package: name}
			switch spec := p[name].(type) {
			case map[string]any:
				pkg.Version = stringList(spec["version"])
			case string:
				pkg.Version = []string{spec}
			}
			pkgs = append(pkgs, pkg)
		}
	}
	return pkgs
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}

func stringList(v any) []string {
	switch s := v.(type) {
	case string:
		return []string{s}
	case []string:
		return s
	case []any:
		var out []string
		for _, item := range s {
			if item == nil {
				continue
			}
			out = append(out, stringValue(item))
		}
		return out
	}
	return nil
}

package container

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/me/cwl2nf/pkg/model"
)

var imageGrammar = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*(/[a-zA-Z0-9][a-zA-Z0-9._-]*)*(:[a-zA-Z0-9][a-zA-Z0-9._-]*)?$`)

// ValidImage reports whether image matches the accepted reference grammar.
func ValidImage(image string) bool {
	return imageGrammar.MatchString(image)
}

// Validate checks resolved specs. An empty or malformed image is a blocking
// issue; an image outside the canonical registry is a warning with a
// recommendation. Findings are ordered by process id.
func (r Registry) Validate(specs model.ContainerMap) model.Findings {
	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var f model.Findings
	for _, id := range ids {
		spec := specs[id]
		if spec.Image == "" {
			f.Issues = append(f.Issues, fmt.Sprintf("Process '%s' has no container image specified", id))
			continue
		}
		if !ValidImage(spec.Image) {
			f.Issues = append(f.Issues, fmt.Sprintf("Process '%s' has invalid image format: %s", id, spec.Image))
		}
		if !spec.Optimized && !r.IsCanonical(spec.Image) {
			f.Warnings = append(f.Warnings, fmt.Sprintf("Process '%s' container not optimized for AWS", id))
			f.Recommendations = append(f.Recommendations, fmt.Sprintf("Consider using AWS ECR registry for '%s'", id))
		}
	}
	return f
}

// Validate checks specs against the resolver's tables.
func (r *Resolver) Validate(specs model.ContainerMap) model.Findings {
	return r.registry.Validate(specs)
}

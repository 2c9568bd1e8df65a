// Package container resolves, canonicalizes and checks the container image
// of every process in a workflow.
package container

import "strings"

// Mapping substitutes one source-registry prefix for a canonical one.
type Mapping struct {
	From string `json:"from" mapstructure:"from"`
	To   string `json:"to" mapstructure:"to"`
}

// Registry holds the immutable tables used to canonicalize images.
type Registry struct {
	// CanonicalMarkers are substrings that identify an image as already
	// hosted on the canonical registry.
	CanonicalMarkers []string `mapstructure:"canonical_markers"`
	// Namespace is where speculative references are synthesized.
	Namespace string `mapstructure:"namespace"`
	// Mappings are tried in order; the first matching prefix wins.
	Mappings []Mapping `mapstructure:"mappings"`
	// Curated maps a short tool name to a fixed canonical reference.
	Curated map[string]string `mapstructure:"curated"`
}

// DefaultNamespace is the namespace curated and synthesized images live in.
const DefaultNamespace = "public.ecr.aws/healthomics"

// DefaultRegistry returns the documented default tables.
func DefaultRegistry() Registry {
	curated := make(map[string]string)
	for _, tool := range []string{
		"bwa", "samtools", "bcftools", "gatk", "fastqc",
		"trimmomatic", "star", "hisat2", "kallisto", "salmon",
	} {
		curated[tool] = DefaultNamespace + "/" + tool + ":latest"
	}
	return Registry{
		CanonicalMarkers: []string{"public.ecr.aws", "dkr.ecr"},
		Namespace:        DefaultNamespace,
		Mappings: []Mapping{
			{From: "docker.io", To: "public.ecr.aws"},
			{From: "quay.io", To: "public.ecr.aws"},
			{From: "gcr.io", To: "public.ecr.aws"},
			{From: "k8s.gcr.io", To: "public.ecr.aws"},
		},
		Curated: curated,
	}
}

// clone copies the tables so callers cannot mutate a Resolver's view.
func (r Registry) clone() Registry {
	out := Registry{
		CanonicalMarkers: append([]string(nil), r.CanonicalMarkers...),
		Namespace:        r.Namespace,
		Mappings:         append([]Mapping(nil), r.Mappings...),
		Curated:          make(map[string]string, len(r.Curated)),
	}
	for k, v := range r.Curated {
		out.Curated[k] = v
	}
	if out.Namespace == "" {
		out.Namespace = DefaultNamespace
	}
	return out
}

// IsCanonical reports whether image already points at the canonical registry.
func (r Registry) IsCanonical(image string) bool {
	for _, marker := range r.CanonicalMarkers {
		if marker != "" && strings.Contains(image, marker) {
			return true
		}
	}
	return false
}

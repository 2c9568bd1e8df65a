package container

import (
	"log/slog"
	"strings"

	"github.com/me/cwl2nf/pkg/ir"
	"github.com/me/cwl2nf/pkg/model"
)

const component = "containers"

// CustomBuilt is the image placeholder for processes built from a Dockerfile.
const CustomBuilt = "custom-built"

// DefaultRegistryHost is assumed for references without a registry segment.
const DefaultRegistryHost = "docker.io"

// Resolver derives one ContainerSpec per process.
type Resolver struct {
	registry Registry
	optimize bool
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRegistry injects the canonicalization tables.
func WithRegistry(r Registry) Option {
	return func(res *Resolver) { res.registry = r.clone() }
}

// WithOptimize toggles canonicalization of resolved images. It is on by default.
func WithOptimize(on bool) Option {
	return func(res *Resolver) { res.optimize = on }
}

// NewResolver creates a Resolver with the default tables.
func NewResolver(logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		registry: DefaultRegistry(),
		optimize: true,
		logger:   logger.With("component", component),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns a copy of the resolver's tables.
func (r *Resolver) Registry() Registry { return r.registry.clone() }

// Resolve picks, per process, the first docker requirement or hint in local
// scope, else the first in global scope. A process with neither gets an empty
// image and a ContainerResolutionGap diagnostic.
func (r *Resolver) Resolve(w *ir.WorkflowIR) (model.ContainerMap, model.Diagnostics) {
	var diags model.Diagnostics
	out := make(model.ContainerMap, len(w.Processes))

	for _, id := range w.SortedProcessIDs() {
		p := w.Processes[id]
		spec := model.ContainerSpec{Tag: "latest"}

		if d := firstDocker(p.Requirements, p.Hints); d != nil {
			spec = fromDocker(d)
			spec.Source = "local"
		} else if d := firstDocker(w.Requirements.Docker, w.Hints.Docker); d != nil {
			spec = fromDocker(d)
			spec.Source = "global"
		}

		if spec.Image == "" {
			r.logger.Warn("no container image for process", "process", id)
			diags.Add(model.ContainerResolutionGap, component, id, "no DockerRequirement in process or workflow scope")
		} else if r.optimize && !spec.Dockerfile {
			spec = r.Optimize(spec)
		}
		out[id] = spec
	}
	return out, diags
}

func firstDocker(lists ...[]ir.Requirement) *ir.DockerRequirement {
	for _, list := range lists {
		for _, req := range list {
			if req.Docker != nil {
				return req.Docker
			}
		}
	}
	return nil
}

// fromDocker prefers dockerPull, then dockerImageId, then dockerFile.
func fromDocker(d *ir.DockerRequirement) model.ContainerSpec {
	image := d.DockerPull
	if image == "" {
		image = d.DockerImageID
	}
	if image != "" {
		registry, tag := ParseImageName(image)
		return model.ContainerSpec{Image: image, Registry: registry, Tag: tag}
	}
	if d.DockerFile != "" {
		return model.ContainerSpec{Image: CustomBuilt, Tag: "latest", Dockerfile: true}
	}
	return model.ContainerSpec{Tag: "latest"}
}

// ParseImageName splits an image reference into its registry path and tag.
// The registry path keeps the image name: "quay.io/biocontainers/bwa:0.7"
// yields ("quay.io/biocontainers/bwa", "0.7"), "bwa" yields
// ("docker.io/bwa", "latest").
func ParseImageName(ref string) (registryPath, tag string) {
	parts := strings.Split(ref, "/")
	var prefix, name string
	switch {
	case len(parts) >= 3:
		prefix = strings.Join(parts[:len(parts)-1], "/")
		name = parts[len(parts)-1]
	case len(parts) == 2:
		prefix, name = parts[0], parts[1]
	default:
		prefix, name = DefaultRegistryHost, ref
	}

	tag = "latest"
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name, tag = name[:i], name[i+1:]
	}
	return prefix + "/" + name, tag
}

// baseName strips registry and tag: "docker.io/bwa:latest" becomes "bwa".
func baseName(image string) string {
	if i := strings.LastIndex(image, "/"); i >= 0 {
		image = image[i+1:]
	}
	if i := strings.Index(image, ":"); i >= 0 {
		image = image[:i]
	}
	return image
}

// Canonicalize maps an image reference onto the canonical registry:
// canonical references pass through, curated tools get their fixed
// reference, known registry prefixes are substituted, and anything else is
// synthesized under the default namespace.
func (r Registry) Canonicalize(image string) string {
	if r.IsCanonical(image) {
		return image
	}
	base := baseName(image)
	if ref, ok := r.Curated[base]; ok {
		return ref
	}
	for _, m := range r.Mappings {
		if m.From != "" && strings.HasPrefix(image, m.From) {
			return m.To + image[len(m.From):]
		}
	}
	ns := r.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return ns + "/" + base + ":latest"
}

// Optimize canonicalizes spec.Image. When the image changes, OriginalImage
// records the input reference and Optimized is set. Registry and Tag always
// describe the returned Image.
func (r *Resolver) Optimize(spec model.ContainerSpec) model.ContainerSpec {
	if spec.Image == "" || spec.Dockerfile {
		return spec
	}
	canonical := r.registry.Canonicalize(spec.Image)
	if canonical == spec.Image {
		return spec
	}
	r.logger.Debug("container rewritten", "from", spec.Image, "to", canonical)
	spec.OriginalImage = spec.Image
	spec.Image = canonical
	spec.Optimized = true
	spec.Registry, spec.Tag = ParseImageName(canonical)
	return spec
}

package container

import (
	"fmt"
	"sort"
	"strings"

	"github.com/me/cwl2nf/pkg/model"
)

// ManifestEntry is one process in a container manifest.
type ManifestEntry struct {
	Image     string `json:"image"`
	Registry  string `json:"registry"`
	Tag       string `json:"tag"`
	Type      string `json:"type"`
	Optimized bool   `json:"aws_optimized"`
	Original  string `json:"original_image,omitempty"`
}

// Manifest lists every container a pipeline needs for deployment.
type Manifest struct {
	Version    string                   `json:"version"`
	Containers map[string]ManifestEntry `json:"containers"`
	Registries []string                 `json:"registries"`
	Total      int                      `json:"total_containers"`
}

// NewManifest builds a manifest with registries sorted and deduplicated.
func NewManifest(specs model.ContainerMap) Manifest {
	m := Manifest{
		Version:    "1.0",
		Containers: make(map[string]ManifestEntry, len(specs)),
		Registries: []string{},
		Total:      len(specs),
	}
	seen := map[string]bool{}
	for id, spec := range specs {
		m.Containers[id] = ManifestEntry{
			Image:     spec.Image,
			Registry:  spec.Registry,
			Tag:       spec.Tag,
			Type:      "docker",
			Optimized: spec.Optimized,
			Original:  spec.OriginalImage,
		}
		if spec.Registry != "" && !seen[spec.Registry] {
			seen[spec.Registry] = true
			m.Registries = append(m.Registries, spec.Registry)
		}
	}
	sort.Strings(m.Registries)
	return m
}

func sortedIDs(specs model.ContainerMap) []string {
	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PullScript renders a shell script that pulls every resolved image.
func PullScript(specs model.ContainerMap) string {
	lines := []string{
		"#!/bin/bash",
		"# Pull the containers required by the generated pipeline",
		"set -e",
		"",
		"echo 'Pulling required containers...'",
		"",
	}
	for _, id := range sortedIDs(specs) {
		spec := specs[id]
		if spec.Image == "" || spec.Dockerfile {
			continue
		}
		lines = append(lines,
			fmt.Sprintf("echo 'Pulling container for %s...'", id),
			"docker pull "+spec.Image,
			"",
		)
	}
	lines = append(lines, "echo 'All containers pulled successfully!'", "")
	return strings.Join(lines, "\n")
}

// PushScript renders a shell script that retags every rewritten image from
// its original reference and pushes it to the canonical registry.
func PushScript(specs model.ContainerMap) string {
	lines := []string{
		"#!/bin/bash",
		"# Retag and push rewritten containers to ECR",
		"set -e",
		"",
		"AWS_REGION=${AWS_REGION:-us-east-1}",
		"ECR_REGISTRY=${ECR_REGISTRY:-" + DefaultNamespace + "}",
		"",
		"echo 'Logging into ECR...'",
		"aws ecr-public get-login-password --region $AWS_REGION | docker login --username AWS --password-stdin public.ecr.aws",
		"",
		"echo 'Pushing containers to ECR...'",
		"",
	}
	for _, id := range sortedIDs(specs) {
		spec := specs[id]
		if spec.OriginalImage == "" || spec.OriginalImage == spec.Image {
			continue
		}
		lines = append(lines,
			fmt.Sprintf("echo 'Tagging and pushing %s...'", id),
			fmt.Sprintf("docker tag %s %s", spec.OriginalImage, spec.Image),
			"docker push "+spec.Image,
			"",
		)
	}
	lines = append(lines, "echo 'All containers pushed to ECR successfully!'", "")
	return strings.Join(lines, "\n")
}

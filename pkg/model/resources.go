package model

// ResourceProfile is the normalized compute request of one process.
type ResourceProfile struct {
	CPUs   int    `json:"cpus"`
	Memory string `json:"memory"`
	Disk   string `json:"disk"`
	Time   string `json:"time"`

	// Tier and Scheduling are set only after tier optimization.
	Tier         string           `json:"tier,omitempty"`
	InstanceType string           `json:"instance_type,omitempty"`
	Scheduling   *SchedulingHints `json:"scheduling,omitempty"`
}

// SchedulingHints carries batch-queue placement for a tier-fitted process.
type SchedulingHints struct {
	Queue         string `json:"queue"`
	JobDefinition string `json:"job_definition"`
	RetryAttempts int    `json:"retry_attempts"`
}

// ResourceMap maps process id to its resource profile.
type ResourceMap map[string]ResourceProfile

// ContainerSpec is the resolved container reference of one process.
type ContainerSpec struct {
	Image     string `json:"image"`
	Registry  string `json:"registry"`
	Tag       string `json:"tag"`
	Optimized bool   `json:"aws_optimized"`
	// OriginalImage is set iff Image was rewritten.
	OriginalImage string `json:"original_image,omitempty"`
	// Source is "local", "global" or "" when no container was found.
	Source     string `json:"source,omitempty"`
	Dockerfile bool   `json:"dockerfile,omitempty"`
}

// ContainerMap maps process id to its container spec.
type ContainerMap map[string]ContainerSpec

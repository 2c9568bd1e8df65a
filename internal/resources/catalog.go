package resources

import "sort"

// Tier is a named compute ceiling of the target platform.
type Tier struct {
	Name         string  `json:"name" mapstructure:"name"`
	InstanceType string  `json:"instance_type" mapstructure:"instance_type"`
	CPUs         int     `json:"cpus" mapstructure:"cpus"`
	MemoryGB     float64 `json:"memory_gb" mapstructure:"memory_gb"`
}

// Catalog is an immutable set of tiers keyed by name.
type Catalog struct {
	tiers map[string]Tier
}

// NewCatalog builds a catalog. Later entries replace earlier ones with the same name.
// A tier without an instance type uses its name.
func NewCatalog(tiers []Tier) Catalog {
	c := Catalog{tiers: make(map[string]Tier, len(tiers))}
	for _, t := range tiers {
		if t.InstanceType == "" {
			t.InstanceType = t.Name
		}
		c.tiers[t.Name] = t
	}
	return c
}

// Lookup returns the tier with the given name.
func (c Catalog) Lookup(name string) (Tier, bool) {
	t, ok := c.tiers[name]
	return t, ok
}

// Tiers returns all tiers ordered by cpus, memory, then name.
func (c Catalog) Tiers() []Tier {
	out := make([]Tier, 0, len(c.tiers))
	for _, t := range c.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CPUs != out[j].CPUs {
			return out[i].CPUs < out[j].CPUs
		}
		if out[i].MemoryGB != out[j].MemoryGB {
			return out[i].MemoryGB < out[j].MemoryGB
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of tiers.
func (c Catalog) Len() int { return len(c.tiers) }

// DefaultTiers is the documented default catalog: common EC2 instance types
// plus size aliases over the t3 family.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "t3.nano", CPUs: 2, MemoryGB: 0.5},
		{Name: "t3.micro", CPUs: 2, MemoryGB: 1},
		{Name: "t3.small", CPUs: 2, MemoryGB: 2},
		{Name: "t3.medium", CPUs: 2, MemoryGB: 4},
		{Name: "t3.large", CPUs: 2, MemoryGB: 8},
		{Name: "t3.xlarge", CPUs: 4, MemoryGB: 16},
		{Name: "t3.2xlarge", CPUs: 8, MemoryGB: 32},
		{Name: "m5.large", CPUs: 2, MemoryGB: 8},
		{Name: "m5.xlarge", CPUs: 4, MemoryGB: 16},
		{Name: "m5.2xlarge", CPUs: 8, MemoryGB: 32},
		{Name: "m5.4xlarge", CPUs: 16, MemoryGB: 64},
		{Name: "c5.large", CPUs: 2, MemoryGB: 4},
		{Name: "c5.xlarge", CPUs: 4, MemoryGB: 8},
		{Name: "c5.2xlarge", CPUs: 8, MemoryGB: 16},
		{Name: "c5.4xlarge", CPUs: 16, MemoryGB: 32},
		{Name: "r5.large", CPUs: 2, MemoryGB: 16},
		{Name: "r5.xlarge", CPUs: 4, MemoryGB: 32},
		{Name: "r5.2xlarge", CPUs: 8, MemoryGB: 64},
		{Name: "r5.4xlarge", CPUs: 16, MemoryGB: 128},
		{Name: "small", InstanceType: "t3.small", CPUs: 2, MemoryGB: 2},
		{Name: "medium", InstanceType: "t3.medium", CPUs: 2, MemoryGB: 4},
		{Name: "large", InstanceType: "t3.large", CPUs: 2, MemoryGB: 8},
		{Name: "xlarge", InstanceType: "t3.xlarge", CPUs: 4, MemoryGB: 16},
		{Name: "2xlarge", InstanceType: "t3.2xlarge", CPUs: 8, MemoryGB: 32},
	}
}

// DefaultCatalog wraps DefaultTiers.
func DefaultCatalog() Catalog {
	return NewCatalog(DefaultTiers())
}

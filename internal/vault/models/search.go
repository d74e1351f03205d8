package models

// DefaultSearchLimit caps search results when no limit is given.
const DefaultSearchLimit = 100

// SearchFilter is a flat conjunctive filter. Owner, Type and RetentionClass
// match exactly; Tags matches when the artifact carries any of them.
type SearchFilter struct {
	Owner          string
	Type           ArtifactType
	RetentionClass RetentionClass
	Tags           []string
	Limit          int
}

func (f SearchFilter) Matches(a *Artifact) bool {
	if f.Owner != "" && a.Owner != f.Owner {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.RetentionClass != "" && a.RetentionClass != f.RetentionClass {
		return false
	}
	if len(f.Tags) > 0 && !a.HasAnyTag(f.Tags) {
		return false
	}
	return true
}

// EffectiveLimit returns Limit, or DefaultSearchLimit when Limit is not positive.
func (f SearchFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultSearchLimit
	}
	return f.Limit
}

// Statistics aggregates the vault contents and access log.
type Statistics struct {
	TotalArtifacts             int                    `json:"total_artifacts" yaml:"total_artifacts"`
	ByType                     map[ArtifactType]int   `json:"by_type" yaml:"by_type"`
	ByRetentionClass           map[RetentionClass]int `json:"by_retention_class" yaml:"by_retention_class"`
	TotalAccesses              int64                  `json:"total_accesses" yaml:"total_accesses"`
	AverageAccessesPerArtifact float64                `json:"average_accesses_per_artifact" yaml:"average_accesses_per_artifact"`
	AccessLogSize              int                    `json:"access_log_size" yaml:"access_log_size"`
}

package models

import "time"

// ValidationIssue is one data-quality finding of the integrity stage. Issues
// are data, never failures; the run carries on with every flagged record.
type ValidationIssue struct {
	ID         int        `gorm:"primary_key" json:"-"`
	RunId      string     `gorm:"size:64;index;not null" json:"run_id,omitempty"`
	EntityKind EntityKind `gorm:"size:20;index;not null" json:"entity_kind"`
	Keys       []string   `gorm:"type:text;serializer:json" json:"keys"`
	IssueKind  IssueKind  `gorm:"size:30;index;not null" json:"issue_kind"`
	Detail     string     `gorm:"type:text" json:"detail"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"-"`
}

func (ValidationIssue) TableName() string {
	return "leakage_issues"
}

// CountIssuesByKind returns a count for every known issue kind, zero included.
func CountIssuesByKind(issues []ValidationIssue) map[IssueKind]int {
	counts := make(map[IssueKind]int, len(AllIssueKinds))
	for _, kind := range AllIssueKinds {
		counts[kind] = 0
	}
	for _, issue := range issues {
		counts[issue.IssueKind]++
	}
	return counts
}

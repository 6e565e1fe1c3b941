package models

import "time"

// DocumentType enumerates artifact kinds the registry tracks.
type DocumentType string

const (
	DocPRD             DocumentType = "prd"
	DocArchitecture    DocumentType = "architecture"
	DocStory           DocumentType = "story"
	DocEpic            DocumentType = "epic"
	DocTestPlan        DocumentType = "test_plan"
	DocDesign          DocumentType = "design"
	DocReport          DocumentType = "report"
	DocChecklist       DocumentType = "checklist"
	DocTemplate        DocumentType = "template"
	DocWorkflow        DocumentType = "workflow"
	DocMeetingNotes    DocumentType = "meeting_notes"
	DocRetrospective   DocumentType = "retrospective"
	DocOther           DocumentType = "other"
)

// DocumentStatus is a document's editorial lifecycle state.
type DocumentStatus string

const (
	StatusDraft      DocumentStatus = "draft"
	StatusInReview   DocumentStatus = "in_review"
	StatusApproved   DocumentStatus = "approved"
	StatusInProgress DocumentStatus = "in_progress"
	StatusCompleted  DocumentStatus = "completed"
	StatusArchived   DocumentStatus = "archived"
	StatusDeprecated DocumentStatus = "deprecated"
)

// AccessLevel orders READ < WRITE < ADMIN.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessRead
	AccessWrite
	AccessAdmin
)

// Document is an immutable-by-version content record with metadata and ACLs.
type Document struct {
	ID            string            `json:"id"`
	RootID        string            `json:"root_id"`
	Title         string            `json:"title"`
	Type          DocumentType      `json:"type"`
	Status        DocumentStatus    `json:"status"`
	Version       int               `json:"version"`
	ParentVersion string            `json:"parent_version,omitempty"`
	Creator       string            `json:"creator"`
	Modifier      string            `json:"modifier"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Content       []byte            `json:"content"`
	ContentHash   string            `json:"content_hash"`
	Owner         string            `json:"owner"`
	Readers       map[string]bool   `json:"readers"`
	Writers       map[string]bool   `json:"writers"`
	WorkflowID    string            `json:"workflow_id,omitempty"`
	TeamID        string            `json:"team_id,omitempty"`
	Tags          map[string]bool   `json:"tags"`
	Dependencies  []string          `json:"dependencies"`
}

// HasAccess reports whether agentID has at least the requested access level.
func (d *Document) HasAccess(agentID string, level AccessLevel) bool {
	if agentID == d.Owner {
		return true
	}
	switch level {
	case AccessAdmin:
		return false
	case AccessWrite:
		return d.Writers[agentID]
	case AccessRead:
		return d.Readers[agentID] || d.Writers[agentID]
	default:
		return true
	}
}

// Clone returns a deep copy of the document, safe to hand to callers.
func (d *Document) Clone() *Document {
	cp := *d
	cp.Content = append([]byte(nil), d.Content...)
	cp.Readers = cloneSet(d.Readers)
	cp.Writers = cloneSet(d.Writers)
	cp.Tags = cloneSet(d.Tags)
	cp.Dependencies = append([]string(nil), d.Dependencies...)
	return &cp
}

func cloneSet(s map[string]bool) map[string]bool {
	cp := make(map[string]bool, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

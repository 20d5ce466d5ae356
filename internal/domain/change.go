package domain

// OperationType names the kind of change a bulk operation applies.
type OperationType string

const (
	OperationTypeBranchUpdate OperationType = "branch_update"
	OperationTypeAppSync      OperationType = "app_sync"
)

func (t OperationType) String() string {
	return string(t)
}

// FileChange is one file written by a branch update.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ChangeDescriptor is the logical change applied identically to every target.
// Appliers read the fields relevant to their operation type and ignore the rest.
type ChangeDescriptor struct {
	Description string            `json:"description"`
	Author      string            `json:"author,omitempty"`
	AuthorEmail string            `json:"author_email,omitempty"`
	Files       []FileChange      `json:"files,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

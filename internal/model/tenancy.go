package model

// Tenancy is the (project, branch) pair a device session and its eventual
// credential must agree on.
type Tenancy struct {
	ProjectID string `json:"projectId"`
	BranchID  string `json:"branchId"`
}

// Equal requires both the project and the branch to match. A credential valid
// for one branch of a project must not authorize a session scoped to a
// sibling branch.
func (t Tenancy) Equal(other Tenancy) bool {
	return t.ProjectID == other.ProjectID && t.BranchID == other.BranchID
}

func (t Tenancy) String() string {
	return t.ProjectID + "/" + t.BranchID
}

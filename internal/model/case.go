package model

type CaseStatus string

const (
	CaseStatusOpen       CaseStatus = "OPEN"
	CaseStatusInProgress CaseStatus = "IN_PROGRESS"
	CaseStatusResolved   CaseStatus = "RESOLVED"
	CaseStatusClosed     CaseStatus = "CLOSED"
)

// Closed reports whether the case can no longer generate appointments.
func (s CaseStatus) Closed() bool {
	return s == CaseStatusResolved || s == CaseStatusClosed
}

// CaseContext is the read-only case data consumed when building booking
// payloads: it decides which party is provider and which is requester.
type CaseContext struct {
	CaseID        int64      `json:"caseId"`
	Title         string     `json:"title,omitempty"`
	LawyerID      int64      `json:"lawyerId"`
	CitizenUserID int64      `json:"citizenUserId"`
	Status        CaseStatus `json:"status"`
}

type Role string

const (
	RoleCitizen Role = "CITIZEN"
	RoleLawyer  Role = "LAWYER"
	RoleNGO     Role = "NGO"
	RoleAdmin   Role = "ADMIN"
)

// Provider reports whether the role books out its own calendar.
func (r Role) Provider() bool {
	return r == RoleLawyer || r == RoleNGO
}

// Participants is the resolved provider/requester pair for one case
// selection. Computed once, consumed as data everywhere else.
type Participants struct {
	ProviderID  int64 `json:"providerId"`
	RequesterID int64 `json:"requesterId"`
}

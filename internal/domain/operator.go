package domain

// OperatorRole controls what an admin operator may do.
type OperatorRole string

const (
	OperatorRoleAgent OperatorRole = "AGENT"
	OperatorRoleAdmin OperatorRole = "ADMIN"
)

// Operator is the identity of an admin console user as presented by the
// external auth collaborator. The engine stores only the ID on cases.
type Operator struct {
	ID          string
	DisplayName string
	Role        OperatorRole
}

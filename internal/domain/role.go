package domain

// Built-in role names seeded at bootstrap.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Role maps a role name to the permission set granted to accounts holding it.
// Access credentials embed a snapshot of this set at issuance time; the
// snapshot is not re-evaluated until the credential is refreshed.
type Role struct {
	Name        string   `json:"name" dynamodbav:"name"`
	Description string   `json:"description" dynamodbav:"description"`
	Permissions []string `json:"permissions" dynamodbav:"permissions"`
}

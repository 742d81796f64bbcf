package enums

// ActorRole is the caller role carried by the session token.
type ActorRole string

const (
	ActorRoleCustomer ActorRole = "customer"
	ActorRoleQuoter   ActorRole = "quoter"
	ActorRoleAdmin    ActorRole = "admin"
)

var actorRoles = closedSet[ActorRole]{ActorRoleCustomer, ActorRoleQuoter, ActorRoleAdmin}

func (r ActorRole) IsValid() bool { return actorRoles.has(r) }

// IsStaff is true for back-office roles that quote on behalf of customers.
func (r ActorRole) IsStaff() bool {
	return r == ActorRoleAdmin || r == ActorRoleQuoter
}

func ParseActorRole(value string) (ActorRole, error) {
	return actorRoles.parse("actor role", value)
}

package rbac

// Resource represents a resource type in the system
type Resource string

const (
	ResourceJobs      Resource = "jobs"
	ResourceMembers   Resource = "members"
	ResourceProfiles  Resource = "profiles"
	ResourceSettings  Resource = "settings"
	ResourceCommunity Resource = "community"
	ResourcePlatform  Resource = "platform"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// Permission represents a specific permission (action + resource)
type Permission struct {
	Action   Action   `json:"action"`
	Resource Resource `json:"resource"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// Role represents a user role in the platform
type Role string

const (
	// RolePlatformOwner administers the platform itself
	RolePlatformOwner Role = "platform-owner"
	// RoleTenantOwner owns a single community and its settings
	RoleTenantOwner Role = "tenant-owner"
	// RoleEmployer can manage job postings within a community
	RoleEmployer Role = "employer"
	// RoleMember is the least-privilege default role
	RoleMember Role = "member"
)

// DefaultRole is the fallback for unrecognized role values. It is the
// least-privilege role so an unknown role never widens access.
const DefaultRole = RoleMember

// ParseRole normalizes a stored role value, falling back to DefaultRole
// for anything outside the fixed enumeration.
func ParseRole(s string) Role {
	switch Role(s) {
	case RolePlatformOwner, RoleTenantOwner, RoleEmployer, RoleMember:
		return Role(s)
	default:
		return DefaultRole
	}
}

// rolePermissions is the static role -> permission-set table. It is
// configuration data: every role in the enumeration has an entry, and the
// table is never derived or mutated at runtime.
var rolePermissions = map[Role][]Permission{
	RolePlatformOwner: {
		{Action: ActionManage, Resource: ResourcePlatform},
		{Action: ActionCreate, Resource: ResourceCommunity},
		{Action: ActionRead, Resource: ResourceCommunity},
		{Action: ActionUpdate, Resource: ResourceCommunity},
		{Action: ActionDelete, Resource: ResourceCommunity},
		{Action: ActionRead, Resource: ResourceJobs},
		{Action: ActionRead, Resource: ResourceMembers},
		{Action: ActionRead, Resource: ResourceProfiles},
		{Action: ActionRead, Resource: ResourceSettings},
		{Action: ActionUpdate, Resource: ResourceSettings},
	},
	RoleTenantOwner: {
		{Action: ActionCreate, Resource: ResourceJobs},
		{Action: ActionRead, Resource: ResourceJobs},
		{Action: ActionUpdate, Resource: ResourceJobs},
		{Action: ActionDelete, Resource: ResourceJobs},
		{Action: ActionCreate, Resource: ResourceMembers},
		{Action: ActionRead, Resource: ResourceMembers},
		{Action: ActionUpdate, Resource: ResourceMembers},
		{Action: ActionDelete, Resource: ResourceMembers},
		{Action: ActionRead, Resource: ResourceProfiles},
		{Action: ActionRead, Resource: ResourceSettings},
		{Action: ActionUpdate, Resource: ResourceSettings},
		{Action: ActionManage, Resource: ResourceCommunity},
		{Action: ActionRead, Resource: ResourceCommunity},
		{Action: ActionUpdate, Resource: ResourceCommunity},
	},
	RoleEmployer: {
		{Action: ActionCreate, Resource: ResourceJobs},
		{Action: ActionRead, Resource: ResourceJobs},
		{Action: ActionUpdate, Resource: ResourceJobs},
		{Action: ActionDelete, Resource: ResourceJobs},
		{Action: ActionRead, Resource: ResourceProfiles},
		{Action: ActionRead, Resource: ResourceCommunity},
	},
	RoleMember: {
		{Action: ActionRead, Resource: ResourceJobs},
		{Action: ActionCreate, Resource: ResourceProfiles},
		{Action: ActionRead, Resource: ResourceProfiles},
		{Action: ActionUpdate, Resource: ResourceProfiles},
		{Action: ActionRead, Resource: ResourceCommunity},
	},
}

// Roles returns all roles defined in the permission table.
func Roles() []Role {
	return []Role{RolePlatformOwner, RoleTenantOwner, RoleEmployer, RoleMember}
}

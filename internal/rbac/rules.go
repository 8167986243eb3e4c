package rbac

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// RolePermissions is the default policy. Course ownership is checked
// separately by the enrollment gate; these only gate the route.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"course:view",
		"course:enroll",
		"course:rate",
		"quiz:view",
		"quiz:submit",
		"progress:own",
		"certificate:own",
		"discussion:post",
		"user:change_password",
		"user:update_profile",
	},
	RoleInstructor: {
		"course:view",
		"course:create",
		"course:edit_own",
		"quiz:view",
		"quiz:manage",
		"progress:view_course",
		"assignment:grade",
		"certificate:own",
		"discussion:post",
		"discussion:resolve",
		"announcement:manage",
		"user:change_password",
		"user:update_profile",
	},
	RoleAdmin: {
		"*",
	},
}

func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

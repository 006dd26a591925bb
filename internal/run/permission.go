package run

// Permission mirrors the platform's location authorization status.
type Permission string

const (
	PermissionNotDetermined Permission = "not_determined"
	PermissionRestricted    Permission = "restricted"
	PermissionDenied        Permission = "denied"
	PermissionWhenInUse     Permission = "authorized_when_in_use"
	PermissionAlways        Permission = "authorized_always"
)

func (p Permission) Granted() bool {
	return p == PermissionWhenInUse || p == PermissionAlways
}

func ParsePermission(s string) (Permission, bool) {
	switch p := Permission(s); p {
	case PermissionNotDetermined, PermissionRestricted, PermissionDenied, PermissionWhenInUse, PermissionAlways:
		return p, true
	}
	return "", false
}

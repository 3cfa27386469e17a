package rfr

//IsEligible reports whether a member holding memberRoles may use reaction roles in a guild whose
//required roles are requiredRoles. An empty requirement admits everyone.
func IsEligible(memberRoles []string, requiredRoles []string) bool {
	if len(requiredRoles) == 0 {
		return true
	}
	held := make(map[string]struct{}, len(memberRoles))
	for _, r := range memberRoles {
		held[r] = struct{}{}
	}
	for _, r := range requiredRoles {
		if _, ok := held[r]; ok {
			return true
		}
	}
	return false
}

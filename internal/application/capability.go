package application

// HasModeratorCapability reports whether the principal may moderate events
// and record attendance.
func HasModeratorCapability(p Principal) bool {
	return p.Role == RoleAdmin || p.Role == RoleCR
}

// IsCreator reports whether the principal created the event.
func IsCreator(p Principal, e Event) bool {
	return p.UserID != "" && p.UserID == e.CreatorID
}

// canManage is the creator-or-moderator rule shared by update, delete and
// attendee listing.
func canManage(p Principal, e Event) bool {
	return IsCreator(p, e) || HasModeratorCapability(p)
}

// canView reports whether the principal may see the event at all.
func canView(p Principal, e Event) bool {
	return e.Status == StatusApproved || canManage(p, e)
}

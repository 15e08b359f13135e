package gate

// AdminSet is the static allowlist of users who generate without paying.
type AdminSet map[int64]struct{}

func NewAdminSet(ids []int64) AdminSet {
	set := make(AdminSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s AdminSet) Contains(userID int64) bool {
	_, ok := s[userID]
	return ok
}

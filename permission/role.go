package permission

// Role is a portal account role as carried in the "role" token claim.
type Role string

const (
	SuperAdmin Role = "super_admin"
	Admin      Role = "admin"
	Teacher    Role = "teacher"
	Accountant Role = "accountant"
	Librarian  Role = "librarian"
	Student    Role = "student"
	Parent     Role = "parent"
)

// Tier ranks.
const (
	RankUnknown = 0
	RankFamily  = 1
	RankStaff   = 2
	RankAdmin   = 3
	RankSuper   = 4
)

var portal = mustPortalTable()

func mustPortalTable() *RoleTable {
	t := NewRoleTable()
	for _, def := range []struct {
		role  Role
		label string
		rank  int
	}{
		{SuperAdmin, "Super Admin", RankSuper},
		{Admin, "Administrator", RankAdmin},
		{Teacher, "Teacher", RankStaff},
		{Accountant, "Accountant", RankStaff},
		{Librarian, "Librarian", RankStaff},
		{Student, "Student", RankFamily},
		{Parent, "Parent", RankFamily},
	} {
		if err := t.Register(def.role, def.label, def.rank); err != nil {
			panic(err)
		}
	}
	t.Freeze()
	return t
}

// Portal returns the frozen built-in role table.
func Portal() *RoleTable { return portal }

// Known reports whether role is one of the built-in roles.
func Known(role Role) bool { return portal.Known(role) }

// Rank returns role's rank in the built-in table, 0 when unknown.
func Rank(role Role) int { return portal.Rank(role) }

// Label returns the display label for role, or the role string itself when
// unknown.
func Label(role Role) string { return portal.Label(role) }

// Roles lists the built-in roles, highest rank first.
func Roles() []Role { return portal.Roles() }

// Allows reports whether role satisfies required against the built-in table.
func Allows(role Role, required ...Role) bool { return portal.Allows(role, required...) }

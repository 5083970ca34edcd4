package rbac

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

const (
	PermExamView         = "exam:view"
	PermExamCreate       = "exam:create"
	PermExamManage       = "exam:manage" // visibility flag, rank bands
	PermExamExport       = "exam:export"
	PermNormalizationRun = "normalization:run"
)

// RolePermissions is the default policy. Candidates are anonymous and need no role.
var RolePermissions = map[string][]string{
	RoleOperator: {
		PermExamView,
		PermExamExport,
		PermNormalizationRun,
	},
	RoleAdmin: {
		"*", // everything
	},
}

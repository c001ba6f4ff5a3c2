package permissions

// Permission identifiers used by the HTTP layer.
const (
	MessageView    = "message.view"
	MessageDelete  = "message.delete"
	ToolView       = "lti.tool.view"
	ToolManage     = "lti.tool.manage"
	ToolLaunch     = "lti.tool.launch"
	CourseView     = "course.view"
	CourseManage   = "course.manage"
	AuditView      = "audit.view"
	SettingsManage = "settings.manage"
	UserManage     = "user.manage"
)

func init() {
	defs := []Permission{
		{ID: MessageView, Module: "messages", Description: "View own sent messages"},
		{ID: MessageDelete, Module: "messages", DependsOn: []string{MessageView}, Description: "Delete own sent messages"},
		{ID: CourseView, Module: "courses", Description: "View courses and their evaluations"},
		{ID: CourseManage, Module: "courses", DependsOn: []string{CourseView}, Description: "Create courses and gradebook evaluations"},
		{ID: ToolView, Module: "lti", Description: "View external tool configurations"},
		{ID: ToolLaunch, Module: "lti", DependsOn: []string{ToolView}, Description: "Launch external tools"},
		{ID: ToolManage, Module: "lti", DependsOn: []string{ToolView, CourseView}, Description: "Create, relink and delete external tools"},
		{ID: AuditView, Module: "core", Description: "Read the audit log"},
		{ID: SettingsManage, Module: "core", Description: "Toggle platform features"},
		{ID: UserManage, Module: "core", Description: "Create platform profiles and assign roles"},
	}
	for _, def := range defs {
		if err := Register(def); err != nil {
			panic(err)
		}
	}
}

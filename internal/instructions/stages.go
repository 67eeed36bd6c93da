package instructions

// Stage describes one named phase of the multi-stage development workflow.
type Stage struct {
	Name        string
	Description string
	Optional    bool
}

// Stages returns the static catalog of known workflow stages in display order.
func Stages() []Stage {
	return []Stage{
		{Name: "planning_design_gitsetup", Description: "Initial planning, design, and Git setup"},
		{Name: "scaffolding_mvp", Description: "Build MVP structure with TDD"},
		{Name: "database_design", Description: "Design and implement database layer"},
		{Name: "code_debug", Description: "Debug, optimize, and improve code quality"},
		{Name: "addchange_check", Description: "Pull request workflow and change management"},
		{Name: "deploy_test", Description: "Set up deployment and production testing"},
		{Name: "document", Description: "Create comprehensive documentation"},
		{Name: "upgrade", Description: "Upgrade dependencies and add enhancements"},
		{Name: "opt_api_design", Description: "API-first design and contract definition", Optional: true},
		{Name: "opt_integration_test", Description: "End-to-end and integration testing", Optional: true},
		{Name: "opt_performance_baseline", Description: "Establish performance metrics and optimize", Optional: true},
		{Name: "opt_security_audit", Description: "Security assessment and remediation", Optional: true},
		{Name: "opt_monitoring_observability", Description: "Implement monitoring and observability", Optional: true},
		{Name: "opt_release_management", Description: "Version control and release automation", Optional: true},
	}
}

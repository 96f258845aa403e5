// Package models provides data model definitions for the offline sync engine.
package models

// EntityType identifies one of the replicated entity tables.
// The set is closed: every dispatch site switches exhaustively over All(),
// so adding an entity type is a compile-visible change.
type EntityType string

const (
	EntityQuestion             EntityType = "question"
	EntityAssessment           EntityType = "assessment"
	EntityResponse             EntityType = "response"
	EntityCategoryCatalog      EntityType = "category_catalog"
	EntitySubmission           EntityType = "submission"
	EntityDraftSubmission      EntityType = "draft_submission"
	EntityReport               EntityType = "report"
	EntityAdminReport          EntityType = "admin_report"
	EntityOrganization         EntityType = "organization"
	EntityUser                 EntityType = "user"
	EntityInvitation           EntityType = "invitation"
	EntityRecommendation       EntityType = "recommendation"
	EntityOrganizationCategory EntityType = "organization_category"
	EntityImage                EntityType = "image"
	EntityActionPlan           EntityType = "action_plan"
)

// All returns every known entity type, in stable order.
// Store migration and remote registry checks iterate this.
func All() []EntityType {
	return []EntityType{
		EntityQuestion,
		EntityAssessment,
		EntityResponse,
		EntityCategoryCatalog,
		EntitySubmission,
		EntityDraftSubmission,
		EntityReport,
		EntityAdminReport,
		EntityOrganization,
		EntityUser,
		EntityInvitation,
		EntityRecommendation,
		EntityOrganizationCategory,
		EntityImage,
		EntityActionPlan,
	}
}

// Valid reports whether t is a member of the closed entity-type set.
func (t EntityType) Valid() bool {
	for _, known := range All() {
		if t == known {
			return true
		}
	}
	return false
}

// TableName returns the local store table backing this entity type.
func (t EntityType) TableName() string {
	return "records_" + string(t)
}

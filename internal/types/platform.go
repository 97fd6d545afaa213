package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Metahub is a tenant of the platform. Each metahub owns one or more
// branches, each of which owns an isolated relational schema.
type Metahub struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Codename    string         `gorm:"uniqueIndex;not null;column:codename" json:"codename"`
	Name        datatypes.JSON `gorm:"column:name;type:jsonb" json:"name"`
	Description datatypes.JSON `gorm:"column:description;type:jsonb" json:"description,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Metahub) TableName() string { return "metahub" }

// Branch owns one physical schema. StructureVersion and the template-version
// pointers are the durable checkpoint of migration progress; they advance
// only after the corresponding operation fully commits.
type Branch struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MetahubID uuid.UUID `gorm:"type:uuid;not null;index" json:"metahub_id"`
	Codename  string    `gorm:"not null;column:codename" json:"codename"`
	IsDefault bool      `gorm:"not null;default:false;column:is_default" json:"is_default"`

	StructureVersion         int        `gorm:"not null;default:0;column:structure_version" json:"structure_version"`
	LastTemplateVersionID    *uuid.UUID `gorm:"type:uuid;column:last_template_version_id" json:"last_template_version_id,omitempty"`
	LastTemplateVersionLabel string     `gorm:"column:last_template_version_label" json:"last_template_version_label,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Branch) TableName() string { return "branch" }

// Template groups the published versions of one template codename.
type Template struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Codename    string         `gorm:"uniqueIndex;not null;column:codename" json:"codename"`
	Name        datatypes.JSON `gorm:"column:name;type:jsonb" json:"name"`
	Description datatypes.JSON `gorm:"column:description;type:jsonb" json:"description,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Template) TableName() string { return "template" }

// TemplateVersion stores one immutable manifest. A new semantic version is a
// new row; Content is the canonical JSON form of the manifest.
type TemplateVersion struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TemplateID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"template_id"`
	VersionLabel        string         `gorm:"not null;column:version_label" json:"version_label"`
	MinStructureVersion int            `gorm:"not null;default:1;column:min_structure_version" json:"min_structure_version"`
	Content             datatypes.JSON `gorm:"column:content;type:jsonb;not null" json:"content"`
	CreatedAt           time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (TemplateVersion) TableName() string { return "template_version" }

// MembershipRole values mirror the dashboard's access model. The migration
// engine itself never checks roles; handlers receive the acting user id only
// to stamp provenance on rows it writes.
type Membership struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MetahubID uuid.UUID      `gorm:"type:uuid;not null;index:idx_membership_metahub_user,unique" json:"metahub_id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_membership_metahub_user,unique" json:"user_id"`
	Role      string         `gorm:"not null;column:role" json:"role"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Membership) TableName() string { return "membership" }

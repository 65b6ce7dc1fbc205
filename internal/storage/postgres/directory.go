package postgres

import (
	"context"
	"errors"

	"github.com/studiolink/session-service/internal/model"
	"github.com/studiolink/session-service/internal/storage"
	"gorm.io/gorm"
)

// Directory reads the marketplace tables (projects, members, users). This
// service never writes them.
type Directory struct {
	db *gorm.DB
}

// NewDirectory creates a directory over the shared marketplace schema.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// ProjectOwner returns the owner's user id for a project.
func (d *Directory) ProjectOwner(ctx context.Context, projectID string) (string, error) {
	var proj model.Project
	if err := d.db.WithContext(ctx).Where("id = ?", projectID).First(&proj).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", storage.ErrNotFound
		}
		return "", err
	}
	return proj.OwnerID, nil
}

// MemberRole returns the user's role in the project, or ("", false) for
// non-members. The owner is a member regardless of the members table.
func (d *Directory) MemberRole(ctx context.Context, projectID, userID string) (string, bool, error) {
	owner, err := d.ProjectOwner(ctx, projectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if owner == userID {
		return "owner", true, nil
	}
	var m model.ProjectMember
	err = d.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return m.Role, true, nil
}

// Profile returns the user's display attributes.
func (d *Directory) Profile(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	if err := d.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

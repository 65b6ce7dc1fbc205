package model

import "time"

// CollabSession — сущность живой сессии коллаборации (GORM).
type CollabSession struct {
	ID                  string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID           string     `gorm:"type:uuid;not null;index"`
	HostID              string     `gorm:"type:uuid;not null;index"`
	Status              string     `gorm:"size:20;not null;default:SCHEDULED"` // SCHEDULED, ACTIVE, PAUSED, ENDED, CANCELLED
	ChannelName         string     `gorm:"size:128;not null;uniqueIndex"`
	Capacity            int        `gorm:"not null;default:10"`
	CurrentParticipants int        `gorm:"not null;default:0"`
	Recording           bool       `gorm:"not null;default:false"`
	ScheduledAt         *time.Time `gorm:"column:scheduled_at"`
	StartedAt           *time.Time `gorm:"column:started_at"`
	EndedAt             *time.Time `gorm:"column:ended_at"`
	CreatedAt           time.Time  `gorm:"autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime"`

	Participants []SessionParticipant `gorm:"foreignKey:SessionID"`
}

func (CollabSession) TableName() string { return "collab_sessions" }

// SessionParticipant — долговременная запись участия пользователя в сессии (GORM).
// Одна строка на пару (session, user); upsert, никогда не удаляется.
type SessionParticipant struct {
	SessionID         string     `gorm:"type:uuid;primaryKey"`
	UserID            string     `gorm:"type:uuid;primaryKey"`
	Role              string     `gorm:"size:20;not null"` // OWNER, COLLABORATOR, CLIENT, OBSERVER
	InvitationStatus  string     `gorm:"size:20;not null;default:PENDING"`
	CanShareAudio     bool       `gorm:"not null;default:true"`
	CanShareVideo     bool       `gorm:"not null;default:true"`
	CanControlPlayback bool      `gorm:"not null;default:false"`
	CanApproveFiles   bool       `gorm:"not null;default:false"`
	Online            bool       `gorm:"not null;default:false"`
	LastSeenAt        *time.Time `gorm:"column:last_seen_at"`
	MediaUID          uint32     `gorm:"column:media_uid;not null;default:0"`
	MediaToken        string     `gorm:"column:media_token;size:512"`
	MediaTokenExpires *time.Time `gorm:"column:media_token_expires_at"`
	JoinCount         int        `gorm:"not null;default:0"`
	CreatedAt         time.Time  `gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime"`
}

func (SessionParticipant) TableName() string { return "session_participants" }

// Project — проект маркетплейса (read-only для этого сервиса).
type Project struct {
	ID      string `gorm:"type:uuid;primaryKey"`
	OwnerID string `gorm:"type:uuid;not null;index"`
	Title   string `gorm:"size:255;not null"`
}

func (Project) TableName() string { return "projects" }

// ProjectMember — членство в проекте (read-only для этого сервиса).
type ProjectMember struct {
	ProjectID string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;primaryKey"`
	Role      string `gorm:"size:20;not null"`
}

func (ProjectMember) TableName() string { return "project_members" }

// User — профиль пользователя (read-only для этого сервиса).
type User struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	DisplayName string `gorm:"size:255;not null"`
	Email       string `gorm:"size:255;not null"`
	AvatarURL   string `gorm:"size:512"`
}

func (User) TableName() string { return "users" }

package model

// ParticipantRole is fixed at first join from project membership and never
// recomputed for that session.
type ParticipantRole string

const (
	RoleOwner        ParticipantRole = "OWNER"
	RoleCollaborator ParticipantRole = "COLLABORATOR"
	RoleClient       ParticipantRole = "CLIENT"
	RoleObserver     ParticipantRole = "OBSERVER"
)

// InvitationStatus tracks whether the user accepted their seat in the session.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationDeclined InvitationStatus = "DECLINED"
)

// Capabilities are the per-participant permission flags. Host can override
// any of them after creation.
type Capabilities struct {
	CanShareAudio      bool `json:"can_share_audio"`
	CanShareVideo      bool `json:"can_share_video"`
	CanControlPlayback bool `json:"can_control_playback"`
	CanApproveFiles    bool `json:"can_approve_files"`
}

// roleDefaults is pure data: role → default capability flags. Everyone may
// share audio/video; only OWNER controls playback and approves files by
// default.
var roleDefaults = map[ParticipantRole]Capabilities{
	RoleOwner:        {CanShareAudio: true, CanShareVideo: true, CanControlPlayback: true, CanApproveFiles: true},
	RoleCollaborator: {CanShareAudio: true, CanShareVideo: true},
	RoleClient:       {CanShareAudio: true, CanShareVideo: true},
	RoleObserver:     {CanShareAudio: true, CanShareVideo: true},
}

// DefaultCapabilities returns the capability defaults for a role. Unknown
// roles get OBSERVER defaults.
func DefaultCapabilities(role ParticipantRole) Capabilities {
	if caps, ok := roleDefaults[role]; ok {
		return caps
	}
	return roleDefaults[RoleObserver]
}

// ProjectRoleToParticipant maps a marketplace project-membership role onto
// the session role assigned at first join.
func ProjectRoleToParticipant(projectRole string, isOwner bool) ParticipantRole {
	if isOwner {
		return RoleOwner
	}
	switch projectRole {
	case "producer", "collaborator":
		return RoleCollaborator
	case "client":
		return RoleClient
	default:
		return RoleObserver
	}
}

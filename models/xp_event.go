package models

import "time"

// ActionKind is the closed set of actions that grant XP.
type ActionKind string

const (
	ActionCompleteBook      ActionKind = "COMPLETAR_LIBRO"
	ActionVote              ActionKind = "VOTAR"
	ActionFirstComment      ActionKind = "PRIMER_COMENTARIO"
	ActionAdditionalComment ActionKind = "COMENTARIO_ADICIONAL"
	ActionCreateClub        ActionKind = "CREAR_CLUB"
	ActionJoinClub          ActionKind = "UNIRSE_CLUB"
	ActionAddBook           ActionKind = "AGREGAR_LIBRO"
	ActionCreateVote        ActionKind = "CREAR_VOTACION"
	ActionConfirmAttendance ActionKind = "CONFIRMAR_ASISTENCIA"
	ActionAttendSession     ActionKind = "ASISTIR_SESION"
	ActionOrganizeSession   ActionKind = "ORGANIZAR_SESION"
)

// ActionKinds lists every known action.
var ActionKinds = []ActionKind{
	ActionCompleteBook,
	ActionVote,
	ActionFirstComment,
	ActionAdditionalComment,
	ActionCreateClub,
	ActionJoinClub,
	ActionAddBook,
	ActionCreateVote,
	ActionConfirmAttendance,
	ActionAttendSession,
	ActionOrganizeSession,
}

// Known reports whether a is part of the closed action set.
func (a ActionKind) Known() bool {
	for _, k := range ActionKinds {
		if k == a {
			return true
		}
	}
	return false
}

// XPEvent is the append-only ledger of XP grants, written in the same
// transaction as the progress update it describes.
type XPEvent struct {
	ID         string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID     string     `gorm:"type:uuid;not null;index:idx_xp_user_date,priority:1" json:"user_id"`
	Action     ActionKind `gorm:"type:varchar(32);not null" json:"action"`
	Amount     int64      `gorm:"not null" json:"amount"`
	XPAfter    int64      `gorm:"not null" json:"xp_after"`
	LevelAfter int        `gorm:"not null" json:"level_after"`
	ClubID     *string    `gorm:"type:uuid;index" json:"club_id,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index:idx_xp_user_date,priority:2" json:"created_at"`
}

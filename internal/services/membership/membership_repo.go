package membership

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/curaious/projecthub/internal/apperrors"
	"github.com/curaious/projecthub/internal/db"
	"github.com/curaious/projecthub/internal/services/project"
)

const invitationColumns = `i.id, i.project_id, i.email, i.role, i.invited_by, i.inviter_email, i.token,
        i.created_at, i.expires_at, i.accepted_at`

const membershipColumns = `id, project_id, user_id, role, email, invited_by, joined_at, created_at, updated_at`

const projectColumns = `id, user_id, name, description, tags, created_at, updated_at`

// MembershipRepo handles database operations for memberships and invitations
type MembershipRepo struct {
	db *sqlx.DB
}

// NewMembershipRepo creates a new membership repository
func NewMembershipRepo(db *sqlx.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

// GetProject retrieves a project without any access check
func (r *MembershipRepo) GetProject(ctx context.Context, projectID uuid.UUID) (*project.Project, error) {
	var p project.Project
	err := r.db.GetContext(ctx, &p, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, project.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// IsMember reports whether userID holds a membership row on the project
func (r *MembershipRepo) IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
        SELECT EXISTS (SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2)
    `, projectID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// IsMemberEmail reports whether a member with this email exists on the project
func (r *MembershipRepo) IsMemberEmail(ctx context.Context, projectID uuid.UUID, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
        SELECT EXISTS (SELECT 1 FROM project_members WHERE project_id = $1 AND LOWER(email) = LOWER($2))
    `, projectID, email)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// CreateInvitation inserts inv unless a pending invitation exists for the same project and email.
// Concurrent inserts for one pair are serialized by a transaction-scoped advisory lock.
func (r *MembershipRepo) CreateInvitation(ctx context.Context, inv *Invitation, now time.Time) (*Invitation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text), hashtext(LOWER($2)))`, inv.ProjectID, inv.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to lock invitation pair: %w", err)
	}

	var pending bool
	err = tx.GetContext(ctx, &pending, `
        SELECT EXISTS (
            SELECT 1 FROM project_invitations
            WHERE project_id = $1 AND LOWER(email) = LOWER($2)
              AND accepted_at IS NULL AND expires_at > $3
        )
    `, inv.ProjectID, inv.Email, now)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending invitations: %w", err)
	}
	if pending {
		return nil, ErrDuplicatePendingInvitation
	}

	var created Invitation
	err = tx.GetContext(ctx, &created, `
        INSERT INTO project_invitations AS i (project_id, email, role, invited_by, inviter_email, token, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+invitationColumns,
		inv.ProjectID, inv.Email, inv.Role, inv.InvitedBy, inv.InviterEmail, inv.Token, inv.CreatedAt, inv.ExpiresAt)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrConflict, constraint)
		}
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	created.ProjectName = inv.ProjectName
	return &created, nil
}

// GetInvitation retrieves an invitation with its project name
func (r *MembershipRepo) GetInvitation(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	return r.getInvitation(ctx, `i.id = $1`, id)
}

// GetInvitationByToken retrieves an invitation by its emailed token
func (r *MembershipRepo) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	return r.getInvitation(ctx, `i.token = $1`, token)
}

func (r *MembershipRepo) getInvitation(ctx context.Context, where string, arg interface{}) (*Invitation, error) {
	query := `
        SELECT ` + invitationColumns + `, p.name AS project_name
        FROM project_invitations i
        JOIN projects p ON p.id = i.project_id
        WHERE ` + where

	var inv Invitation
	err := r.db.GetContext(ctx, &inv, query, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

// AcceptInvitation creates the membership and marks the invitation accepted in one transaction.
// An acceptor who already owns the project gets no membership row; an existing membership is kept.
func (r *MembershipRepo) AcceptInvitation(ctx context.Context, id uuid.UUID, userID uuid.UUID, email string, now time.Time) (*Invitation, *Membership, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var inv Invitation
	err = tx.GetContext(ctx, &inv, `
        SELECT `+invitationColumns+`, p.name AS project_name
        FROM project_invitations i
        JOIN projects p ON p.id = i.project_id
        WHERE i.id = $1
        FOR UPDATE OF i
    `, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, ErrInvitationNotFound
		}
		return nil, nil, fmt.Errorf("failed to lock invitation: %w", err)
	}

	if err = checkAcceptable(&inv, email, now); err != nil {
		return nil, nil, err
	}

	var ownerID uuid.UUID
	err = tx.GetContext(ctx, &ownerID, `SELECT user_id FROM projects WHERE id = $1 FOR SHARE`, inv.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get project owner: %w", err)
	}

	var membership *Membership
	if ownerID != userID {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO project_members (project_id, user_id, role, email, invited_by, joined_at)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (project_id, user_id) DO NOTHING
        `, inv.ProjectID, userID, inv.Role, email, inv.InvitedBy, now)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create membership: %w", err)
		}

		var m Membership
		err = tx.GetContext(ctx, &m, `
            SELECT `+membershipColumns+` FROM project_members WHERE project_id = $1 AND user_id = $2
        `, inv.ProjectID, userID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get membership: %w", err)
		}
		membership = &m
	}

	_, err = tx.ExecContext(ctx, `UPDATE project_invitations SET accepted_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}
	inv.AcceptedAt = &now

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &inv, membership, nil
}

// DeleteInvitation removes an invitation that is still pending at now. Accepted invitations are
// kept as history and expired ones are left to DeleteExpiredInvitations.
func (r *MembershipRepo) DeleteInvitation(ctx context.Context, id uuid.UUID, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
        DELETE FROM project_invitations WHERE id = $1 AND accepted_at IS NULL AND expires_at > $2
    `, id, now)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	if n == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

// ListProjectInvitations retrieves pending invitations of a project, newest first
func (r *MembershipRepo) ListProjectInvitations(ctx context.Context, projectID uuid.UUID, now time.Time) ([]*Invitation, error) {
	return r.listPending(ctx, `i.project_id = $2`, now, projectID)
}

// ListInvitationsForEmail retrieves pending invitations addressed to email, newest first
func (r *MembershipRepo) ListInvitationsForEmail(ctx context.Context, email string, now time.Time) ([]*Invitation, error) {
	return r.listPending(ctx, `LOWER(i.email) = LOWER($2)`, now, email)
}

func (r *MembershipRepo) listPending(ctx context.Context, where string, now time.Time, arg interface{}) ([]*Invitation, error) {
	query := `
        SELECT ` + invitationColumns + `, p.name AS project_name
        FROM project_invitations i
        JOIN projects p ON p.id = i.project_id
        WHERE i.accepted_at IS NULL AND i.expires_at > $1 AND ` + where + `
        ORDER BY i.created_at DESC, i.id
    `

	invitations := []*Invitation{}
	err := r.db.SelectContext(ctx, &invitations, query, now, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invitations, nil
}

// TransferOwnership hands the project to a current member in one transaction. The new owner's
// membership row is removed; with retainFormer the former owner becomes a member.
func (r *MembershipRepo) TransferOwnership(ctx context.Context, projectID, currentOwnerID, newOwnerID uuid.UUID, retainFormer bool) (*project.Project, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerID uuid.UUID
	err = tx.GetContext(ctx, &ownerID, `SELECT user_id FROM projects WHERE id = $1 FOR UPDATE`, projectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, project.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to lock project: %w", err)
	}
	if ownerID != currentOwnerID {
		return nil, project.ErrNotProjectOwner
	}

	var removed uuid.UUID
	err = tx.GetContext(ctx, &removed, `
        DELETE FROM project_members WHERE project_id = $1 AND user_id = $2 RETURNING id
    `, projectID, newOwnerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNewOwnerNotMember
		}
		return nil, fmt.Errorf("failed to remove new owner membership: %w", err)
	}

	var p project.Project
	err = tx.GetContext(ctx, &p, `
        UPDATE projects SET user_id = $2, updated_at = NOW()
        WHERE id = $1
        RETURNING `+projectColumns, projectID, newOwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to transfer project: %w", err)
	}

	if retainFormer {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO project_members (project_id, user_id, role, email, invited_by)
            SELECT $1, u.id, $3, u.email, $4 FROM users u WHERE u.id = $2
            ON CONFLICT (project_id, user_id) DO NOTHING
        `, projectID, currentOwnerID, RoleMember, newOwnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to retain former owner: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &p, nil
}

// DeleteMembership removes a membership row and reports whether one existed
func (r *MembershipRepo) DeleteMembership(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete membership: %w", err)
	}
	return n > 0, nil
}

type memberRow struct {
	Membership
	Username    *string `db:"username"`
	DisplayName string  `db:"display_name"`
}

// ListParticipants returns the owner followed by members in join order
func (r *MembershipRepo) ListParticipants(ctx context.Context, projectID uuid.UUID) ([]*Participant, error) {
	var owner Participant
	err := r.db.GetContext(ctx, &owner, `
        SELECT 'owner' AS kind, u.id AS user_id, u.email, p.username, COALESCE(p.display_name, '') AS display_name
        FROM projects pr
        JOIN users u ON u.id = pr.user_id
        LEFT JOIN profiles p ON p.user_id = u.id
        WHERE pr.id = $1
    `, projectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, project.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project owner: %w", err)
	}

	rows := []memberRow{}
	err = r.db.SelectContext(ctx, &rows, `
        SELECT m.id, m.project_id, m.user_id, m.role, m.email, m.invited_by, m.joined_at, m.created_at, m.updated_at,
               p.username, COALESCE(p.display_name, '') AS display_name
        FROM project_members m
        LEFT JOIN profiles p ON p.user_id = m.user_id
        WHERE m.project_id = $1
        ORDER BY m.joined_at, m.id
    `, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	participants := make([]*Participant, 0, len(rows)+1)
	participants = append(participants, &owner)
	for i := range rows {
		m := rows[i].Membership
		participants = append(participants, &Participant{
			Kind:        ParticipantMember,
			UserID:      m.UserID,
			Email:       m.Email,
			DisplayName: rows[i].DisplayName,
			Username:    rows[i].Username,
			Membership:  &m,
		})
	}
	return participants, nil
}

// DeleteExpiredInvitations removes unaccepted invitations that expired before cutoff
func (r *MembershipRepo) DeleteExpiredInvitations(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        DELETE FROM project_invitations WHERE accepted_at IS NULL AND expires_at < $1
    `, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	return res.RowsAffected()
}

package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260301090400",
		up:      mig_20260301090400_project_invitations_up,
		down:    mig_20260301090400_project_invitations_down,
	})
}

func mig_20260301090400_project_invitations_up(tx *sqlx.Tx) error {
	_, err := tx.Exec(`
        CREATE TABLE IF NOT EXISTS project_invitations (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
            email VARCHAR(255) NOT NULL,
            role VARCHAR(20) NOT NULL DEFAULT 'member' CHECK (role IN ('member')),
            invited_by UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            inviter_email VARCHAR(255) NOT NULL,
            token TEXT NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
            expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
            accepted_at TIMESTAMP WITH TIME ZONE,
            CONSTRAINT project_invitations_token_key UNIQUE (token)
        );
    `)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        CREATE INDEX IF NOT EXISTS idx_project_invitations_pair ON project_invitations(project_id, LOWER(email)) WHERE accepted_at IS NULL;
        CREATE INDEX IF NOT EXISTS idx_project_invitations_email ON project_invitations(LOWER(email)) WHERE accepted_at IS NULL;
        CREATE INDEX IF NOT EXISTS idx_project_invitations_expires_at ON project_invitations(expires_at) WHERE accepted_at IS NULL;
    `)
	return err
}

func mig_20260301090400_project_invitations_down(tx *sqlx.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS project_invitations;`)
	return err
}

package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260301090100",
		up:      mig_20260301090100_profiles_up,
		down:    mig_20260301090100_profiles_down,
	})
}

func mig_20260301090100_profiles_up(tx *sqlx.Tx) error {
	_, err := tx.Exec(`
        CREATE TABLE IF NOT EXISTS profiles (
            user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
            username VARCHAR(30),
            email VARCHAR(255) NOT NULL,
            display_name VARCHAR(255) NOT NULL DEFAULT '',
            avatar_url TEXT,
            bio TEXT,
            location VARCHAR(255),
            website TEXT,
            notification_preferences JSONB NOT NULL DEFAULT '{}'::jsonb,
            theme_preference VARCHAR(20) NOT NULL DEFAULT 'system',
            language_preference VARCHAR(10) NOT NULL DEFAULT 'en',
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
        );
    `)
	if err != nil {
		return err
	}

	// Usernames are unique regardless of case.
	_, err = tx.Exec(`
        CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_username_lower ON profiles (LOWER(username));
    `)
	return err
}

func mig_20260301090100_profiles_down(tx *sqlx.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS profiles;`)
	return err
}

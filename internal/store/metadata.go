package store

import (
	"context"
	"database/sql"
	"errors"
)

// SetMetadata upserts a key-value pair in the metadados table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadados (chave, valor) VALUES ($1, $2)
		 ON CONFLICT (chave) DO UPDATE SET valor = EXCLUDED.valor`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT valor FROM metadados WHERE chave = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func importedFileKey(path string) string {
	return "arquivo_importado:" + path
}

// GetImportedFileHash returns the hash recorded for a seeded file, or "" if it was never seeded.
func (s *Store) GetImportedFileHash(ctx context.Context, path string) (string, error) {
	return s.GetMetadata(ctx, importedFileKey(path))
}

// SetImportedFileHash records the hash of a seeded file.
func (s *Store) SetImportedFileHash(ctx context.Context, path, hash string) error {
	return s.SetMetadata(ctx, importedFileKey(path), hash)
}

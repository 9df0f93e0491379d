package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrDBNotReady = errors.New("database not initialized")
	// ErrDuplicate marks a unique-index violation, e.g. a lost race for a tree slot.
	ErrDuplicate = errors.New("duplicate key")
	// ErrStructuralCorruption is returned when persisted edges do not form a tree.
	ErrStructuralCorruption = errors.New("structural corruption")
)

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}

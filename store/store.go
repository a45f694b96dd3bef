// Package store is the thin repository layer the services talk to. It wraps a
// *gorm.DB so the domain code never formats SQL beyond clause fragments, and
// it turns failed commits into apperr.PersistenceError after rollback.
package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/forumkit/forumkit/apperr"
)

// Store exposes the repository contract over a gorm connection or an open
// transaction.
type Store struct {
	db *gorm.DB
}

// New wraps a gorm database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for query building that needs gorm clauses
// directly (aggregate counts, joins). Mutating flows should go through Tx.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Add persists a new entity.
func (s *Store) Add(entity interface{}) error {
	if err := s.db.Create(entity).Error; err != nil {
		return &apperr.PersistenceError{Message: "create failed", Err: err}
	}
	return nil
}

// Save writes all fields of an existing entity.
func (s *Store) Save(entity interface{}) error {
	if err := s.db.Save(entity).Error; err != nil {
		return &apperr.PersistenceError{Message: "save failed", Err: err}
	}
	return nil
}

// Delete removes an entity.
func (s *Store) Delete(entity interface{}) error {
	if err := s.db.Delete(entity).Error; err != nil {
		return &apperr.PersistenceError{Message: "delete failed", Err: err}
	}
	return nil
}

// Get loads an entity by primary key into dest. Returns apperr.ErrNotFound
// when no row matches.
func (s *Store) Get(dest interface{}, id interface{}) error {
	err := s.db.First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return &apperr.PersistenceError{Message: "get failed", Err: err}
	}
	return nil
}

// FindBy loads all rows matching the condition into dest (a slice pointer).
func (s *Store) FindBy(dest interface{}, query interface{}, args ...interface{}) error {
	if err := s.db.Where(query, args...).Find(dest).Error; err != nil {
		return &apperr.PersistenceError{Message: "find failed", Err: err}
	}
	return nil
}

// FindOneBy loads the first row matching the condition into dest. Returns
// apperr.ErrNotFound when no row matches.
func (s *Store) FindOneBy(dest interface{}, query interface{}, args ...interface{}) error {
	err := s.db.Where(query, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return &apperr.PersistenceError{Message: "find failed", Err: err}
	}
	return nil
}

// Tx runs fn inside one transaction. Any error rolls the whole unit of work
// back; commit failures come back as apperr.PersistenceError. Nested calls
// join the surrounding transaction.
func (s *Store) Tx(fn func(tx *Store) error) error {
	err := s.db.Transaction(func(gtx *gorm.DB) error {
		return fn(&Store{db: gtx})
	})
	if err == nil {
		return nil
	}
	// Domain errors pass through unchanged.
	var pe *apperr.PersistenceError
	var sv *apperr.StopValidation
	var sa *apperr.StopAuthentication
	if errors.As(err, &pe) || errors.As(err, &sv) || errors.As(err, &sa) ||
		errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrForbidden) {
		return err
	}
	var ve *apperr.ValidationError
	var te *apperr.TokenError
	if errors.As(err, &ve) || errors.As(err, &te) {
		return err
	}
	return &apperr.PersistenceError{Message: "transaction failed", Err: err}
}

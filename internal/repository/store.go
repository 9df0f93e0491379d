package repository

import (
	"context"
	"fmt"

	"github.com/shinyyama/referral-tree-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store groups the referral repositories over one connection or transaction.
type Store interface {
	Users() UserRepository
	Tree() TreeRepository
	Referrals() ReferralRepository
	History() PointsHistoryRepository
	// Transaction runs fn against a Store bound to a single transaction.
	// Any error returned by fn rolls back every write made through tx.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	// Export reads every row of the four tables as stored, without
	// interpreting the edges.
	Export(ctx context.Context) (*Export, error)
	// Reset empties all four tables and restarts user ids at 1. beforeClear,
	// when non-nil, runs inside the same transaction ahead of the deletes and
	// aborts the reset by returning an error.
	Reset(ctx context.Context, beforeClear func(tx Store) error) error
	Ping(ctx context.Context) error
	HasTable(name string) bool
	SetDB(db *gorm.DB)
}

// Export is a raw dump of the referral tables.
type Export struct {
	Users     []model.User          `json:"users"`
	Edges     []model.TreeEdge      `json:"edges"`
	Referrals []model.Referral      `json:"referrals"`
	History   []model.PointsHistory `json:"history"`
}

func (e *Export) Empty() bool {
	return len(e.Users) == 0 && len(e.Edges) == 0 && len(e.Referrals) == 0 && len(e.History) == 0
}

type gormStore struct {
	db        *gorm.DB
	users     UserRepository
	tree      TreeRepository
	referrals ReferralRepository
	history   PointsHistoryRepository
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:        db,
		users:     NewUserRepository(db),
		tree:      NewTreeRepository(db),
		referrals: NewReferralRepository(db),
		history:   NewPointsHistoryRepository(db),
	}
}

func (s *gormStore) Users() UserRepository { return s.users }
func (s *gormStore) Tree() TreeRepository { return s.tree }
func (s *gormStore) Referrals() ReferralRepository { return s.referrals }
func (s *gormStore) History() PointsHistoryRepository { return s.history }

func (s *gormStore) SetDB(db *gorm.DB) {
	s.db = db
	s.users.SetDB(db)
	s.tree.SetDB(db)
	s.referrals.SetDB(db)
	s.history.SetDB(db)
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.db == nil {
		return ErrDBNotReady
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func (s *gormStore) Export(ctx context.Context) (*Export, error) {
	if s.db == nil {
		return nil, ErrDBNotReady
	}
	var out Export
	db := s.db.WithContext(ctx)
	if err := db.Order("id ASC").Find(&out.Users).Error; err != nil {
		return nil, fmt.Errorf("export users: %w", err)
	}
	if err := db.Order("user_id ASC").Find(&out.Edges).Error; err != nil {
		return nil, fmt.Errorf("export edges: %w", err)
	}
	if err := db.Order("id ASC").Find(&out.Referrals).Error; err != nil {
		return nil, fmt.Errorf("export referrals: %w", err)
	}
	if err := db.Order("id ASC").Find(&out.History).Error; err != nil {
		return nil, fmt.Errorf("export history: %w", err)
	}
	return &out, nil
}

func (s *gormStore) Reset(ctx context.Context, beforeClear func(tx Store) error) error {
	if s.db == nil {
		return ErrDBNotReady
	}
	dialect := s.db.Dialector.Name()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForReset(tx, dialect); err != nil {
			return err
		}
		if beforeClear != nil {
			if err := beforeClear(NewStore(tx)); err != nil {
				return err
			}
		}
		// children first: referrals and history point at users
		for _, m := range []interface{}{&model.Referral{}, &model.PointsHistory{}, &model.TreeEdge{}, &model.User{}} {
			if err := tx.Where("1 = 1").Delete(m).Error; err != nil {
				return fmt.Errorf("clear %T: %w", m, err)
			}
		}
		if dialect != "mysql" {
			return restartUserIDs(tx, dialect)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// ALTER TABLE commits implicitly on MySQL, so it runs after the deletes are durable.
	if dialect == "mysql" {
		return restartUserIDs(s.db.WithContext(ctx), dialect)
	}
	return nil
}

// lockForReset keeps registrations from committing between what beforeClear
// reads and the deletes. sqlite needs nothing: Connect pins it to one
// connection and writers are serialised.
func lockForReset(tx *gorm.DB, dialect string) error {
	var err error
	switch dialect {
	case "postgres":
		err = tx.Exec("LOCK TABLE users, binary_tree_structure, referrals, points_history IN EXCLUSIVE MODE").Error
	case "mysql":
		var ids []uint64
		err = tx.Model(&model.TreeEdge{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Pluck("user_id", &ids).Error
	}
	if err != nil {
		return fmt.Errorf("lock for reset: %w", err)
	}
	return nil
}

func restartUserIDs(db *gorm.DB, dialect string) error {
	var stmt string
	switch dialect {
	case "mysql":
		stmt = "ALTER TABLE users AUTO_INCREMENT = 1"
	case "postgres":
		stmt = "ALTER SEQUENCE users_id_seq RESTART WITH 1"
	case "sqlite":
		stmt = "DELETE FROM sqlite_sequence WHERE name = 'users'"
	default:
		return fmt.Errorf("restart user ids: unsupported dialect %q", dialect)
	}
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("restart user ids: %w", err)
	}
	return nil
}

func (s *gormStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrDBNotReady
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *gormStore) HasTable(name string) bool {
	if s.db == nil {
		return false
	}
	return s.db.Migrator().HasTable(name)
}

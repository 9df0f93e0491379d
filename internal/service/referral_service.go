package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/shinyyama/referral-tree-backend/internal/model"
	"github.com/shinyyama/referral-tree-backend/internal/reqctx"
	"github.com/shinyyama/referral-tree-backend/internal/repository"
	"github.com/shinyyama/referral-tree-backend/internal/snapshot"
	"github.com/shinyyama/referral-tree-backend/internal/tree"
	"gorm.io/gorm"
)

const (
	maxNameLen          = 120
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

var referralTables = []string{"users", "binary_tree_structure", "referrals", "points_history"}

type ReferralService interface {
	Register(ctx context.Context, in RegisterInput) (uint64, error)
	UpdatePoints(ctx context.Context, userID uint64, balance int64) error
	ResetSystem(ctx context.Context) error
	Scoreboard(ctx context.Context, rootUserID uint64) (*Scoreboard, error)
	FullTree(ctx context.Context, rootUserID uint64) (*tree.NodeView, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	Referrals(ctx context.Context, referrerID uint64) ([]model.User, error)
	History(ctx context.Context, userID uint64, limit int) ([]model.PointsHistory, error)
	Stats(ctx context.Context) (*Stats, error)
	Health(ctx context.Context) *Health
}

// TreeArchiver stores a copy of the referral tables before they are wiped.
type TreeArchiver interface {
	Archive(ctx context.Context, c *snapshot.Contents) (string, error)
}

type Options struct {
	MaxDepth        int
	MaxParticipants int
	RegisterRetries int
	Archiver        TreeArchiver
}

type RegisterInput struct {
	Name          string
	InitialPoints int64
	// ReferrerID is nil (or 0) only for the first user, who becomes the root.
	ReferrerID *uint64
}

type Scoreboard struct {
	UserName    string `json:"userName"`
	LeftPoints  int64  `json:"leftPoints"`
	RightPoints int64  `json:"rightPoints"`
}

type Stats struct {
	Users          int64 `json:"users"`
	TreeEdges      int64 `json:"treeEdges"`
	Referrals      int64 `json:"referrals"`
	HistoryEntries int64 `json:"historyEntries"`
	TotalPoints    int64 `json:"totalPoints"`
}

type Health struct {
	OK       bool            `json:"ok"`
	Database string          `json:"database"`
	Tables   map[string]bool `json:"tables"`
}

type referralService struct {
	store repository.Store
	opts  Options
}

func NewReferralService(store repository.Store, opts Options) ReferralService {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = repository.DefaultMaxDepth
	}
	if opts.RegisterRetries < 0 {
		opts.RegisterRetries = 0
	}
	return &referralService{store: store, opts: opts}
}

func (s *referralService) Register(ctx context.Context, in RegisterInput) (uint64, error) {
	const op = "register"
	rid := reqctx.RID(ctx)
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return 0, newError(KindValidation, op, ErrInvalidName)
	}
	var referrerID uint64
	if in.ReferrerID != nil {
		referrerID = *in.ReferrerID
	}

	var (
		placed placement
		err    error
	)
	for attempt := 0; attempt <= s.opts.RegisterRetries; attempt++ {
		placed, err = s.registerOnce(ctx, name, in.InitialPoints, referrerID)
		if err == nil {
			log.Printf("[referral] rid=%s op=register stage=done user=%d referrer=%d pos=%s attempt=%d", rid, placed.userID, referrerID, placed.position, attempt+1)
			return placed.userID, nil
		}
		if !IsRetryable(err) || ctx.Err() != nil {
			break
		}
		log.Printf("[referral] rid=%s op=register stage=retry referrer=%d attempt=%d err=%v", rid, referrerID, attempt+1, err)
	}
	log.Printf("[referral] rid=%s op=register stage=fail referrer=%d kind=%s err=%v", rid, referrerID, KindOf(err), err)
	return 0, err
}

type placement struct {
	userID   uint64
	position model.Position
}

// registerOnce creates the user, its edge, the referral row and the initial
// ledger entry in one transaction.
func (s *referralService) registerOnce(ctx context.Context, name string, points int64, referrerID uint64) (placement, error) {
	const op = "register"
	var out placement
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if s.opts.MaxParticipants > 0 {
			n, err := tx.Users().Count(ctx)
			if err != nil {
				return err
			}
			if n >= int64(s.opts.MaxParticipants) {
				return newError(KindValidation, op, ErrParticipantLimit)
			}
		}

		hasRoot, err := tx.Tree().HasRoot(ctx)
		if err != nil {
			return err
		}
		edge := &model.TreeEdge{Position: model.PositionRoot}
		switch {
		case !hasRoot && referrerID != 0:
			return newError(KindValidation, op, ErrReferrerNotFound)
		case hasRoot && referrerID == 0:
			return newError(KindValidation, op, ErrReferrerRequired)
		case hasRoot:
			if _, err := tx.Users().FindByID(ctx, referrerID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return newError(KindValidation, op, ErrReferrerNotFound)
				}
				return err
			}
			pos, err := tx.Tree().NextAvailablePosition(ctx, referrerID)
			if err != nil {
				return err
			}
			if pos == model.PositionNone {
				return newError(KindValidation, op, ErrNoFreePosition)
			}
			edge.ParentID = &referrerID
			edge.Position = pos
		}

		u := &model.User{Name: name, CurrentPoints: points}
		if err := tx.Users().Create(ctx, u); err != nil {
			return err
		}
		edge.UserID = u.ID
		if err := tx.Tree().InsertEdge(ctx, edge); err != nil {
			return err
		}
		if edge.ParentID != nil {
			if err := tx.Referrals().Create(ctx, &model.Referral{ReferrerID: referrerID, ReferredID: u.ID}); err != nil {
				return err
			}
		}
		if err := tx.History().Append(ctx, u.ID, points, model.OperationSet, model.DescriptionInitialPoints); err != nil {
			return err
		}
		out = placement{userID: u.ID, position: edge.Position}
		return nil
	})
	if err != nil {
		return placement{}, classify(op, err)
	}
	return out, nil
}

func (s *referralService) UpdatePoints(ctx context.Context, userID uint64, balance int64) error {
	const op = "update_points"
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.Users().FindByID(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(KindValidation, op, ErrUserNotFound)
			}
			return err
		}
		if err := tx.Users().UpdatePoints(ctx, userID, balance); err != nil {
			return err
		}
		return tx.History().Append(ctx, userID, balance, model.OperationSet, model.DescriptionPointsUpdated)
	})
	if err != nil {
		err = classify(op, err)
		log.Printf("[referral] rid=%s op=update_points stage=fail user=%d kind=%s err=%v", reqctx.RID(ctx), userID, KindOf(err), err)
		return err
	}
	log.Printf("[referral] rid=%s op=update_points stage=done user=%d balance=%d", reqctx.RID(ctx), userID, balance)
	return nil
}

// ResetSystem empties every table. With an archiver configured, the raw rows
// are archived first inside the same transaction, so the archive holds
// exactly what gets deleted; a failed upload leaves the data untouched.
// A tree that can no longer be rebuilt is still archived and reset.
func (s *referralService) ResetSystem(ctx context.Context) error {
	const op = "reset"
	rid := reqctx.RID(ctx)
	var beforeClear func(tx repository.Store) error
	if s.opts.Archiver != nil {
		beforeClear = func(tx repository.Store) error {
			return s.archive(ctx, tx)
		}
	}
	if err := s.store.Reset(ctx, beforeClear); err != nil {
		err = classify(op, err)
		log.Printf("[referral] rid=%s op=reset stage=fail kind=%s err=%v", rid, KindOf(err), err)
		return err
	}
	log.Printf("[referral] rid=%s op=reset stage=done operator=%q", rid, reqctx.UID(ctx))
	return nil
}

func (s *referralService) archive(ctx context.Context, tx repository.Store) error {
	const op = "reset"
	rows, err := tx.Export(ctx)
	if err != nil {
		return err
	}
	if rows.Empty() {
		return nil
	}
	c := &snapshot.Contents{Rows: rows}
	edge, err := tx.Tree().FindRoot(ctx)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.TreeError = "no root edge"
	case err != nil:
		return err
	default:
		c.RootID = edge.UserID
		root, err := tx.Tree().ReconstructSubtree(ctx, edge.UserID, s.opts.MaxDepth)
		switch {
		case errors.Is(err, repository.ErrStructuralCorruption):
			c.TreeError = err.Error()
			log.Printf("[referral] rid=%s op=reset stage=archive_corrupt root=%d err=%v", reqctx.RID(ctx), edge.UserID, err)
		case err != nil:
			return err
		case root == nil:
			c.TreeError = fmt.Sprintf("root user %d has no user row", edge.UserID)
		default:
			c.Tree = root.View()
		}
	}
	loc, err := s.opts.Archiver.Archive(ctx, c)
	if err != nil {
		return newError(KindPersistence, op, err)
	}
	log.Printf("[referral] rid=%s op=reset stage=archived users=%d edges=%d location=%s", reqctx.RID(ctx), len(rows.Users), len(rows.Edges), loc)
	return nil
}

func (s *referralService) Scoreboard(ctx context.Context, rootUserID uint64) (*Scoreboard, error) {
	root, err := s.subtree(ctx, "scoreboard", rootUserID)
	if err != nil {
		return nil, err
	}
	sb := &Scoreboard{UserName: root.Name()}
	if l := root.Left(); l != nil {
		sb.LeftPoints = l.CalculatePoints()
	}
	if r := root.Right(); r != nil {
		sb.RightPoints = r.CalculatePoints()
	}
	return sb, nil
}

func (s *referralService) FullTree(ctx context.Context, rootUserID uint64) (*tree.NodeView, error) {
	root, err := s.subtree(ctx, "full_tree", rootUserID)
	if err != nil {
		return nil, err
	}
	return root.View(), nil
}

func (s *referralService) subtree(ctx context.Context, op string, rootUserID uint64) (*tree.Node, error) {
	root, err := s.store.Tree().ReconstructSubtree(ctx, rootUserID, s.opts.MaxDepth)
	if err != nil {
		err = classify(op, err)
		log.Printf("[referral] rid=%s op=%s stage=fail user=%d kind=%s err=%v", reqctx.RID(ctx), op, rootUserID, KindOf(err), err)
		return nil, err
	}
	if root == nil {
		return nil, newError(KindValidation, op, ErrUserNotFound)
	}
	return root, nil
}

func (s *referralService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.store.Users().List(ctx)
	if err != nil {
		return nil, classify("list_users", err)
	}
	return users, nil
}

func (s *referralService) Referrals(ctx context.Context, referrerID uint64) ([]model.User, error) {
	const op = "referrals"
	if err := s.requireUser(ctx, op, referrerID); err != nil {
		return nil, err
	}
	users, err := s.store.Referrals().ListReferred(ctx, referrerID)
	if err != nil {
		return nil, classify(op, err)
	}
	return users, nil
}

// History returns the newest ledger entries first. limit <= 0 selects the
// default page size.
func (s *referralService) History(ctx context.Context, userID uint64, limit int) ([]model.PointsHistory, error) {
	const op = "history"
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if err := s.requireUser(ctx, op, userID); err != nil {
		return nil, err
	}
	list, err := s.store.History().ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, classify(op, err)
	}
	return list, nil
}

func (s *referralService) requireUser(ctx context.Context, op string, id uint64) error {
	if _, err := s.store.Users().FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(KindValidation, op, ErrUserNotFound)
		}
		return classify(op, err)
	}
	return nil
}

func (s *referralService) Stats(ctx context.Context) (*Stats, error) {
	const op = "stats"
	var st Stats
	counters := []struct {
		dst *int64
		fn  func(context.Context) (int64, error)
	}{
		{&st.Users, s.store.Users().Count},
		{&st.TreeEdges, s.store.Tree().Count},
		{&st.Referrals, s.store.Referrals().Count},
		{&st.HistoryEntries, s.store.History().Count},
		{&st.TotalPoints, s.store.Users().SumPoints},
	}
	for _, c := range counters {
		v, err := c.fn(ctx)
		if err != nil {
			return nil, classify(op, err)
		}
		*c.dst = v
	}
	return &st, nil
}

func (s *referralService) Health(ctx context.Context) *Health {
	h := &Health{OK: true, Database: "ok", Tables: make(map[string]bool, len(referralTables))}
	if err := s.store.Ping(ctx); err != nil {
		log.Printf("[referral] rid=%s op=health stage=ping_fail err=%v", reqctx.RID(ctx), err)
		h.OK = false
		h.Database = err.Error()
		return h
	}
	for _, name := range referralTables {
		ok := s.store.HasTable(name)
		h.Tables[name] = ok
		if !ok {
			h.OK = false
		}
	}
	return h
}

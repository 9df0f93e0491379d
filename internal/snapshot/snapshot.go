// Package snapshot exports the referral tables to object storage before a reset.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/shinyyama/referral-tree-backend/internal/repository"
	"github.com/shinyyama/referral-tree-backend/internal/tree"
)

const objectPrefix = "referral-snapshots"

// Uploader writes one object and returns its location.
type Uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error)
}

// Contents is what gets archived before a reset. Rows is always present;
// Tree is nil when there is no root or the edges could not be rebuilt, in
// which case TreeError says why.
type Contents struct {
	Rows      *repository.Export
	RootID    uint64
	Tree      *tree.NodeView
	TreeError string
}

// Document is the JSON body of a snapshot object.
type Document struct {
	ID        string             `json:"id"`
	TakenAt   time.Time          `json:"takenAt"`
	RootID    uint64             `json:"rootId,omitempty"`
	Nodes     int                `json:"nodes"`
	Tree      *tree.NodeView     `json:"tree"`
	TreeError string             `json:"treeError,omitempty"`
	Rows      *repository.Export `json:"rows"`
}

type Snapshotter struct {
	uploader Uploader
	now      func() time.Time
}

func New(uploader Uploader) *Snapshotter {
	return &Snapshotter{uploader: uploader, now: time.Now}
}

// Archive serialises c and uploads it under a unique, date-partitioned name.
func (s *Snapshotter) Archive(ctx context.Context, c *Contents) (string, error) {
	if c == nil || c.Rows == nil {
		return "", fmt.Errorf("snapshot: no rows to archive")
	}
	now := s.now().UTC()
	doc := Document{
		ID:        uuid.NewString(),
		TakenAt:   now,
		RootID:    c.RootID,
		Nodes:     countNodes(c.Tree),
		Tree:      c.Tree,
		TreeError: c.TreeError,
		Rows:      c.Rows,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("snapshot: encode: %w", err)
	}
	path := ObjectPath(now, doc.ID)
	loc, err := s.uploader.Upload(ctx, path, "application/json", data)
	if err != nil {
		return "", fmt.Errorf("snapshot: upload %s: %w", path, err)
	}
	return loc, nil
}

func ObjectPath(t time.Time, id string) string {
	return fmt.Sprintf("%s/%s/%s.json", objectPrefix, t.UTC().Format("2006-01-02"), id)
}

func countNodes(v *tree.NodeView) int {
	if v == nil {
		return 0
	}
	return 1 + countNodes(v.Left) + countNodes(v.Right)
}

// GCSUploader stores objects in a Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("snapshot: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: storage client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket}, nil
}

func (u *GCSUploader) Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	w := u.client.Bucket(u.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", u.bucket, objectPath), nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}

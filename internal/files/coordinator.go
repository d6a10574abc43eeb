package files

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"chmura-plikow/internal/apperrors"
	"chmura-plikow/internal/database"
	"chmura-plikow/internal/models"
	"chmura-plikow/internal/storage"

	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// compensationFailures counts blob deletes that failed after a metadata
// write error. Operators reconcile these orphaned blobs out-of-band.
var compensationFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "upload_compensation_failures_total",
	Help: "Number of failed compensating blob deletions after a metadata write error.",
})

// allowedMimeTypes is a deliberate allow-list. Anything not named here is
// rejected, including types that merely look image-like.
var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Repository is the slice of the metadata store the coordinator consumes.
// CreateNodeWithEvent must write the node and its journal entry in one
// transaction and return the marshaled event.
type Repository interface {
	NodeGetter
	CreateNodeWithEvent(ctx context.Context, arg database.CreateNodeParams, eventType string) (*models.Node, []byte, error)
	NodeExists(ctx context.Context, id string) (bool, error)
}

// EventPublisher fans a committed journal event out to live subscribers.
type EventPublisher interface {
	PublishEvent(ownerID string, eventData []byte)
}

type UploadInput struct {
	// OwnerID as supplied by the caller; must match AuthenticatedID.
	OwnerID string
	// AuthenticatedID is the subject verified by the identity gate.
	AuthenticatedID string
	ParentID        *string
	FileName        string
	MimeType        string
	Data            []byte
	DeclaredSize    int64
}

// Coordinator orchestrates the two-phase upload: object store first, then
// metadata, with a compensating blob delete when the second phase fails.
type Coordinator struct {
	repo   Repository
	blobs  storage.BlobStore
	events EventPublisher
	tree   *TreeEnforcer
	log    zerolog.Logger
}

func NewCoordinator(repo Repository, blobs storage.BlobStore, events EventPublisher, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		repo:   repo,
		blobs:  blobs,
		events: events,
		tree:   NewTreeEnforcer(repo),
		log:    log,
	}
}

// UploadFile validates the request, uploads the bytes and persists the
// metadata. Validation short-circuits on the first failure and nothing is
// written before all checks pass. The object-store write is the irrevocable
// side effect; the metadata write is the commit point.
func (c *Coordinator) UploadFile(ctx context.Context, in UploadInput) (*models.Node, error) {
	if in.OwnerID == "" || in.OwnerID != in.AuthenticatedID {
		return nil, apperrors.New(apperrors.KindAuthorization, "owner does not match authenticated identity")
	}

	if len(in.Data) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "file is required")
	}

	if in.DeclaredSize > 0 && in.DeclaredSize != int64(len(in.Data)) {
		return nil, apperrors.New(apperrors.KindValidation, "declared size does not match payload")
	}

	mimeType := normalizeMimeType(in.MimeType)
	if !allowedMimeTypes[mimeType] {
		return nil, apperrors.New(apperrors.KindUnsupportedType,
			fmt.Sprintf("content type %q is not allowed", in.MimeType))
	}

	ext := filepath.Ext(in.FileName)
	if ext == "" || ext == "." {
		return nil, apperrors.New(apperrors.KindValidation, "file name must include an extension")
	}

	if in.ParentID != nil {
		if _, err := c.tree.ValidateParent(ctx, in.OwnerID, *in.ParentID); err != nil {
			return nil, err
		}
	}

	container := deriveContainer(in.OwnerID, in.ParentID)

	// The storage key never derives from the caller-supplied name; only the
	// extension survives.
	key := uuid.NewString() + strings.ToLower(ext)

	locator, err := c.blobs.Upload(ctx, in.Data, key, container)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "object store upload failed", err)
	}

	// A success response with an empty key or URL is still a failure; never
	// trust partial success.
	if locator == nil || locator.Key == "" || locator.URL == "" {
		return nil, apperrors.New(apperrors.KindStorage, "object store returned a malformed locator")
	}

	nodeID, err := c.generateUniqueID(ctx)
	if err != nil {
		c.compensate(ctx, locator.Key, err)
		return nil, apperrors.Wrap(apperrors.KindPersistence, "failed to allocate node id", err)
	}

	var thumbnailURL *string
	if locator.ThumbnailURL != "" {
		thumbnailURL = &locator.ThumbnailURL
	}

	node, eventBytes, err := c.repo.CreateNodeWithEvent(ctx, database.CreateNodeParams{
		ID:           nodeID,
		OwnerID:      in.OwnerID,
		ParentID:     in.ParentID,
		Name:         in.FileName,
		Path:         locator.Key,
		IsFolder:     false,
		SizeBytes:    int64(len(in.Data)),
		MimeType:     mimeType,
		BlobURL:      &locator.URL,
		ThumbnailURL: thumbnailURL,
	}, "node_created")
	if err != nil {
		c.compensate(ctx, locator.Key, err)
		if errors.Is(err, database.ErrDuplicateNodeName) {
			return nil, apperrors.Wrap(apperrors.KindConflict, "a file with the same name already exists here", err)
		}
		return nil, apperrors.Wrap(apperrors.KindPersistence, "failed to persist file metadata", err)
	}

	c.events.PublishEvent(in.OwnerID, eventBytes)

	return node, nil
}

// CreateFolder applies the same parent and ownership invariants as an
// upload, minus the blob phase.
func (c *Coordinator) CreateFolder(ctx context.Context, ownerID string, name string, parentID *string) (*models.Node, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.New(apperrors.KindValidation, "folder name cannot be empty")
	}

	if parentID != nil {
		if _, err := c.tree.ValidateParent(ctx, ownerID, *parentID); err != nil {
			return nil, err
		}
	}

	nodeID, err := c.generateUniqueID(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "failed to allocate node id", err)
	}

	node, eventBytes, err := c.repo.CreateNodeWithEvent(ctx, database.CreateNodeParams{
		ID:       nodeID,
		OwnerID:  ownerID,
		ParentID: parentID,
		Name:     strings.TrimSpace(name),
		Path:     deriveContainer(ownerID, parentID),
		IsFolder: true,
		MimeType: "folder",
	}, "node_created")
	if err != nil {
		if errors.Is(err, database.ErrDuplicateNodeName) {
			return nil, apperrors.Wrap(apperrors.KindConflict, "a folder with the same name already exists here", err)
		}
		if errors.Is(err, database.ErrParentNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "Parent folder not found")
		}
		return nil, apperrors.Wrap(apperrors.KindPersistence, "failed to persist folder metadata", err)
	}

	c.events.PublishEvent(ownerID, eventBytes)

	return node, nil
}

// Tree exposes the enforcer for callers that re-validate invariants inside
// their own transactions.
func (c *Coordinator) Tree() *TreeEnforcer {
	return c.tree
}

// compensate best-effort deletes the blob left behind by a failed metadata
// write. Its own failure is logged on a separate channel and counted, never
// surfaced: the caller gets the original persistence error.
func (c *Coordinator) compensate(ctx context.Context, blobKey string, cause error) {
	if err := c.blobs.Delete(ctx, blobKey); err != nil {
		compensationFailures.Inc()
		c.log.Warn().
			Err(err).
			Str("blob_key", blobKey).
			AnErr("cause", cause).
			Msg("compensating blob delete failed, orphaned blob needs reconciliation")
	}
}

func (c *Coordinator) generateUniqueID(ctx context.Context) (string, error) {
	maxRetries := 10

	generateID, err := nanoid.Standard(21)
	if err != nil {
		return "", fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}

	for i := 0; i < maxRetries; i++ {
		id := generateID()
		exists, err := c.repo.NodeExists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to check for node existence: %w", err)
		}
		if !exists {
			return id, nil
		}
	}

	return "", fmt.Errorf("failed to generate a unique ID after %d attempts", maxRetries)
}

// deriveContainer returns the per-owner root container, or the
// per-owner-per-folder container when a parent is given.
func deriveContainer(ownerID string, parentID *string) string {
	if parentID == nil {
		return ownerID
	}
	return ownerID + "/" + *parentID
}

func normalizeMimeType(mimeType string) string {
	// Strip parameters like "; charset=binary" before the allow-list check.
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

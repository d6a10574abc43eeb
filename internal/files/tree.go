package files

import (
	"context"

	"chmura-plikow/internal/apperrors"
	"chmura-plikow/internal/models"
)

// maxTreeDepth bounds ancestor walks. Every prior mutation keeps the
// hierarchy a forest, so hitting the guard means corrupted data rather than
// a legal tree.
const maxTreeDepth = 128

// NodeGetter is the single lookup the enforcer needs. Both *database.Queries
// and the transaction-scoped queries handed out by Store.ExecTx satisfy it,
// so invariants can be re-checked inside the same transaction as a write.
type NodeGetter interface {
	GetNodeByID(ctx context.Context, id string, ownerID string) (*models.Node, error)
}

// TreeEnforcer validates proposed hierarchy mutations against the current
// tree: ownership, folder-ness of parents and acyclicity.
type TreeEnforcer struct {
	nodes NodeGetter
}

func NewTreeEnforcer(nodes NodeGetter) *TreeEnforcer {
	return &TreeEnforcer{nodes: nodes}
}

// ValidateParent confirms parentID names a live folder owned by ownerID.
// Absence, foreign ownership and file parents are indistinguishable to the
// caller on purpose: all are "parent folder not found".
func (e *TreeEnforcer) ValidateParent(ctx context.Context, ownerID string, parentID string) (*models.Node, error) {
	parent, err := e.nodes.GetNodeByID(ctx, parentID, ownerID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistence, "failed to look up parent folder", err)
	}
	if parent == nil || !parent.IsFolder {
		return nil, apperrors.New(apperrors.KindNotFound, "Parent folder not found")
	}

	return parent, nil
}

// WouldCreateCycle reports whether re-parenting nodeID under newParentID
// would make the node its own ancestor. The walk climbs the parent chain by
// repeated id lookups, bounded by maxTreeDepth.
func (e *TreeEnforcer) WouldCreateCycle(ctx context.Context, ownerID string, nodeID string, newParentID string) (bool, error) {
	if nodeID == newParentID {
		return true, nil
	}

	currentID := newParentID
	for depth := 0; depth < maxTreeDepth; depth++ {
		ancestor, err := e.nodes.GetNodeByID(ctx, currentID, ownerID)
		if err != nil {
			return false, apperrors.Wrap(apperrors.KindPersistence, "failed to walk ancestor chain", err)
		}
		if ancestor == nil || ancestor.ParentID == nil {
			return false, nil
		}
		if *ancestor.ParentID == nodeID {
			return true, nil
		}
		currentID = *ancestor.ParentID
	}

	return false, apperrors.New(apperrors.KindPersistence, "ancestor chain exceeds maximum depth, hierarchy may be corrupted")
}

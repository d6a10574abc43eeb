package api

import (
	"context"
	"errors"
	"net/http"

	"chmura-plikow/internal/apperrors"
	"chmura-plikow/internal/database"
	"chmura-plikow/internal/models"

	"github.com/go-chi/chi/v5"
)

// deleteBlobsOrAbort removes object-store content before the metadata rows
// are deleted. A failed blob delete aborts the whole operation so the node
// survives and the caller sees the storage failure; metadata never outlives
// its bytes the other way around.
func (s *Server) deleteBlobsOrAbort(ctx context.Context, blobKeys []string) error {
	for _, key := range blobKeys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			return apperrors.Wrap(apperrors.KindStorage, "failed to remove file contents from storage", err)
		}
	}
	return nil
}

// @Summary      Trash a node
// @Description  Marks the node and its whole subtree as trashed. Reversible via restore.
// @Tags         trash
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path  string  true  "Node id"
// @Success      204  {null}  nil
// @Failure      404  {object}  ErrorResponse
// @Router       /nodes/{nodeId} [delete]
func (s *Server) DeleteNodeHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")
	ownerID := claims.OwnerID()

	var eventBytes []byte

	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		ok, err := q.TrashNode(r.Context(), nodeID, ownerID)
		if err != nil {
			return err
		}
		if !ok {
			return database.ErrNodeNotFound
		}

		eventBytes, err = q.LogEvent(r.Context(), ownerID, "node_trashed", map[string]string{"id": nodeID})
		return err
	})

	if txErr != nil {
		if errors.Is(txErr, database.ErrNodeNotFound) {
			writeErrorMessage(w, http.StatusNotFound, "Node not found or you do not have permission to delete it")
			return
		}
		writeErrorMessage(w, http.StatusInternalServerError, "Failed to trash node")
		return
	}

	s.publishEvent(ownerID, eventBytes)

	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Restore a node from trash
// @Description  Un-trashes the subtree rooted at the node. If its original parent is still trashed the node re-attaches at the root.
// @Tags         trash
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path  string  true  "Node id"
// @Success      200  {object}  models.Node
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /nodes/{nodeId}/restore [post]
func (s *Server) RestoreNodeHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")
	ownerID := claims.OwnerID()

	var restored *models.Node
	var eventBytes []byte

	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		ok, err := q.RestoreNode(r.Context(), nodeID, ownerID)
		if err != nil {
			return err
		}
		if !ok {
			return database.ErrNodeNotFound
		}

		restored, err = q.GetNodeByID(r.Context(), nodeID, ownerID)
		if err != nil {
			return err
		}

		eventBytes, err = q.LogEvent(r.Context(), ownerID, "node_restored", restored)
		return err
	})

	if txErr != nil {
		switch {
		case errors.Is(txErr, database.ErrNodeNotFound):
			writeErrorMessage(w, http.StatusNotFound, "Node not found in trash")
		case errors.Is(txErr, database.ErrDuplicateNodeName):
			writeErrorMessage(w, http.StatusConflict, "A node with the same name already exists in the restore location")
		default:
			writeErrorMessage(w, http.StatusInternalServerError, "Failed to restore node")
		}
		return
	}

	s.publishEvent(ownerID, eventBytes)

	writeJSON(w, http.StatusOK, restored)
}

// @Summary      List trash
// @Description  Returns the roots of trashed subtrees. Descendants are implied by their root.
// @Tags         trash
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  models.Node
// @Router       /trash [get]
func (s *Server) ListTrashHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	limit, offset := parsePagination(r)

	nodes, err := s.store.ListTrashRoots(r.Context(), claims.OwnerID(), limit, offset)
	if err != nil {
		writeErrorMessage(w, http.StatusInternalServerError, "Failed to list trash")
		return
	}

	writeJSON(w, http.StatusOK, nodes)
}

// @Summary      Empty the trash
// @Description  Removes the file blobs of every trashed node from the object store, then hard-deletes the metadata.
// @Tags         trash
// @Produce      json
// @Security     BearerAuth
// @Success      204  {null}  nil
// @Router       /trash/purge [delete]
func (s *Server) PurgeTrashHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	ownerID := claims.OwnerID()

	var eventBytes []byte

	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		blobKeys, err := q.ListTrashBlobKeys(r.Context(), ownerID)
		if err != nil {
			return err
		}

		// Blobs go first. If any delete fails the transaction rolls back and
		// the trash is untouched.
		if err := s.deleteBlobsOrAbort(r.Context(), blobKeys); err != nil {
			return err
		}

		if _, err := q.PurgeTrash(r.Context(), ownerID); err != nil {
			return err
		}

		eventBytes, err = q.LogEvent(r.Context(), ownerID, "trash_purged", map[string]int{"deleted_files": len(blobKeys)})
		return err
	})

	if txErr != nil {
		writeError(w, txErr)
		return
	}

	s.publishEvent(ownerID, eventBytes)

	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Hard-delete a node
// @Description  Irreversibly deletes the node, blobs before metadata. Non-empty folders are refused unless recursive=true.
// @Tags         trash
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId     path   string  true   "Node id"
// @Param        recursive  query  bool    false  "Delete a non-empty folder with its whole subtree"
// @Success      204  {null}  nil
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /nodes/{nodeId}/hard [delete]
func (s *Server) HardDeleteNodeHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")
	ownerID := claims.OwnerID()
	recursive := r.URL.Query().Get("recursive") == "true"

	var eventBytes []byte

	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		node, err := q.GetNodeAnyState(r.Context(), nodeID, ownerID)
		if err != nil {
			return err
		}
		if node == nil {
			return database.ErrNodeNotFound
		}

		if node.IsFolder && !recursive {
			count, err := q.CountChildren(r.Context(), ownerID, nodeID)
			if err != nil {
				return err
			}
			if count > 0 {
				return database.ErrFolderNotEmpty
			}
		}

		blobKeys, err := q.ListSubtreeBlobKeys(r.Context(), nodeID, ownerID)
		if err != nil {
			return err
		}

		// Blobs go first. If any delete fails the transaction rolls back and
		// the node survives.
		if err := s.deleteBlobsOrAbort(r.Context(), blobKeys); err != nil {
			return err
		}

		if _, err := q.DeleteSubtree(r.Context(), nodeID, ownerID); err != nil {
			return err
		}

		eventBytes, err = q.LogEvent(r.Context(), ownerID, "node_deleted", map[string]string{"id": nodeID})
		return err
	})

	if txErr != nil {
		switch {
		case errors.Is(txErr, database.ErrNodeNotFound):
			writeErrorMessage(w, http.StatusNotFound, "Node not found or you do not have permission to delete it")
		case errors.Is(txErr, database.ErrFolderNotEmpty):
			writeErrorMessage(w, http.StatusConflict, "Folder is not empty; pass recursive=true to delete it with its contents")
		default:
			writeError(w, txErr)
		}
		return
	}

	s.publishEvent(ownerID, eventBytes)

	w.WriteHeader(http.StatusNoContent)
}

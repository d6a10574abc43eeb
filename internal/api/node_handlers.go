package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"chmura-plikow/internal/apperrors"
	"chmura-plikow/internal/database"
	"chmura-plikow/internal/files"
	"chmura-plikow/internal/models"

	"github.com/go-chi/chi/v5"
)

// publishEvent pushes an already-journaled event to the owner's websocket
// clients.
func (s *Server) publishEvent(ownerID string, eventBytes []byte) {
	if eventBytes != nil {
		s.wsHub.PublishEvent(ownerID, eventBytes)
	}
}

// @Summary      Upload a file
// @Description  Uploads file bytes to the object store and records the node metadata.
// @Tags         nodes
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file      formData  file    true   "File contents"
// @Param        userId    formData  string  true   "Owner id, must match the authenticated identity"
// @Param        parentId  formData  string  false  "Destination folder id"
// @Success      200  {object}  models.Node
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /nodes/file [post]
func (s *Server) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<30)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Error parsing multipart form")
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperrors.New(apperrors.KindValidation, "file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Error reading uploaded file")
		return
	}

	var parentID *string
	if v := r.FormValue("parentId"); v != "" {
		parentID = &v
	}

	node, err := s.coordinator.UploadFile(r.Context(), files.UploadInput{
		OwnerID:         r.FormValue("userId"),
		AuthenticatedID: claims.OwnerID(),
		ParentID:        parentID,
		FileName:        handler.Filename,
		MimeType:        handler.Header.Get("Content-Type"),
		Data:            data,
		DeclaredSize:    handler.Size,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, node)
}

type CreateFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

// @Summary      Create a folder
// @Tags         nodes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Success      201  {object}  models.Node
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /nodes/folder [post]
func (s *Server) CreateFolderHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	node, err := s.coordinator.CreateFolder(r.Context(), claims.OwnerID(), req.Name, req.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, node)
}

// @Summary      List folder contents
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        parent_id  query  string  false  "Folder to list; omit for the root"
// @Success      200  {array}  models.Node
// @Router       /nodes [get]
func (s *Server) ListNodesHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	limit, offset := parsePagination(r)

	var parentID *string
	if v := r.URL.Query().Get("parent_id"); v != "" {
		parentID = &v
	}

	nodes, err := s.store.GetNodesByParentID(r.Context(), claims.OwnerID(), parentID, limit, offset)
	if err != nil {
		writeErrorMessage(w, http.StatusInternalServerError, "Failed to list nodes")
		return
	}

	writeJSON(w, http.StatusOK, nodes)
}

// @Summary      List starred nodes
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  models.Node
// @Router       /starred [get]
func (s *Server) ListStarredHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	limit, offset := parsePagination(r)

	nodes, err := s.store.ListStarred(r.Context(), claims.OwnerID(), limit, offset)
	if err != nil {
		writeErrorMessage(w, http.StatusInternalServerError, "Failed to list starred nodes")
		return
	}

	writeJSON(w, http.StatusOK, nodes)
}

// @Summary      Download a file
// @Tags         nodes
// @Produce      octet-stream
// @Security     BearerAuth
// @Param        nodeId  path  string  true  "Node id"
// @Router       /nodes/{nodeId}/download [get]
func (s *Server) DownloadFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	nodeID := chi.URLParam(r, "nodeId")
	if nodeID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "Node ID is required")
		return
	}

	node, err := s.store.GetNodeByID(r.Context(), nodeID, claims.OwnerID())
	if err != nil {
		writeErrorMessage(w, http.StatusInternalServerError, "Failed to retrieve file metadata")
		return
	}
	if node == nil {
		writeErrorMessage(w, http.StatusNotFound, "File not found")
		return
	}
	if node.IsFolder {
		writeErrorMessage(w, http.StatusBadRequest, "Cannot download a folder")
		return
	}

	fileStream, err := s.blobs.Open(r.Context(), node.Path)
	if err != nil {
		writeErrorMessage(w, http.StatusInternalServerError, "File not found on storage")
		return
	}
	defer fileStream.Close()

	w.Header().Set("Content-Disposition", "attachment; filename=\""+node.Name+"\"")
	if node.MimeType != "" {
		w.Header().Set("Content-Type", node.MimeType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", node.SizeBytes))

	io.Copy(w, fileStream)
}

type UpdateNodeRequest struct {
	Name     *string `json:"name"`
	ParentID *string `json:"parent_id"`
}

// @Summary      Rename or move a node
// @Description  Moves re-validate ownership, folder-ness of the target and acyclicity inside the same transaction as the write.
// @Tags         nodes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path  string  true  "Node id"
// @Success      200  {object}  models.Node
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /nodes/{nodeId} [patch]
func (s *Server) UpdateNodeHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")
	ownerID := claims.OwnerID()

	var req UpdateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == nil && req.ParentID == nil {
		writeErrorMessage(w, http.StatusBadRequest, "No update operation specified (provide 'name' or 'parent_id')")
		return
	}

	var updated *models.Node
	var eventBytes []byte

	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		// Lock the row so the invariant checks and the write see one
		// consistent snapshot even under concurrent moves.
		node, err := q.GetNodeForUpdate(r.Context(), nodeID, ownerID)
		if err != nil {
			return err
		}
		if node == nil {
			return database.ErrNodeNotFound
		}

		if req.Name != nil {
			if _, err := q.RenameNode(r.Context(), nodeID, ownerID, *req.Name); err != nil {
				return err
			}
		}

		if req.ParentID != nil {
			var newParentID *string
			if *req.ParentID != "" {
				enforcer := files.NewTreeEnforcer(q)
				if _, err := enforcer.ValidateParent(r.Context(), ownerID, *req.ParentID); err != nil {
					return err
				}
				cycle, err := enforcer.WouldCreateCycle(r.Context(), ownerID, nodeID, *req.ParentID)
				if err != nil {
					return err
				}
				if cycle {
					return apperrors.New(apperrors.KindCycle, "cannot move a folder into its own subtree")
				}
				newParentID = req.ParentID
			}

			if _, err := q.MoveNode(r.Context(), nodeID, ownerID, newParentID); err != nil {
				return err
			}
		}

		updated, err = q.GetNodeByID(r.Context(), nodeID, ownerID)
		if err != nil {
			return err
		}

		eventBytes, err = q.LogEvent(r.Context(), ownerID, "node_updated", updated)
		return err
	})

	if txErr != nil {
		writeUpdateError(w, txErr)
		return
	}

	s.publishEvent(ownerID, eventBytes)

	writeJSON(w, http.StatusOK, updated)
}

func writeUpdateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNodeNotFound):
		writeErrorMessage(w, http.StatusNotFound, "Node not found or you do not have permission to modify it")
	case errors.Is(err, database.ErrDuplicateNodeName):
		writeErrorMessage(w, http.StatusConflict, "A node with the same name already exists in the target folder")
	case errors.Is(err, database.ErrParentNotFound):
		writeErrorMessage(w, http.StatusNotFound, "Parent folder not found")
	default:
		writeError(w, err)
	}
}

// @Summary      Star a node
// @Tags         nodes
// @Security     BearerAuth
// @Param        nodeId  path  string  true  "Node id"
// @Success      204  {null}  nil
// @Router       /nodes/{nodeId}/star [post]
func (s *Server) StarNodeHandler(w http.ResponseWriter, r *http.Request) {
	s.setStarred(w, r, true)
}

// @Summary      Unstar a node
// @Tags         nodes
// @Security     BearerAuth
// @Param        nodeId  path  string  true  "Node id"
// @Success      204  {null}  nil
// @Router       /nodes/{nodeId}/star [delete]
func (s *Server) UnstarNodeHandler(w http.ResponseWriter, r *http.Request) {
	s.setStarred(w, r, false)
}

func (s *Server) setStarred(w http.ResponseWriter, r *http.Request, starred bool) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")
	ownerID := claims.OwnerID()

	var eventBytes []byte

	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		ok, err := q.SetStarred(r.Context(), nodeID, ownerID, starred)
		if err != nil {
			return err
		}
		if !ok {
			return database.ErrNodeNotFound
		}

		eventBytes, err = q.LogEvent(r.Context(), ownerID, "node_updated", map[string]interface{}{
			"id":         nodeID,
			"is_starred": starred,
		})
		return err
	})

	if txErr != nil {
		if errors.Is(txErr, database.ErrNodeNotFound) {
			writeErrorMessage(w, http.StatusNotFound, "Node not found or you do not have permission to modify it")
			return
		}
		writeErrorMessage(w, http.StatusInternalServerError, "Failed to update star flag")
		return
	}

	s.publishEvent(ownerID, eventBytes)

	w.WriteHeader(http.StatusNoContent)
}

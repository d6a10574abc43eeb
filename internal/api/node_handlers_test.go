package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"chmura-plikow/internal/auth"
	"chmura-plikow/internal/database"
	"chmura-plikow/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Funkcje pomocnicze do testów API

func asUser(req *http.Request, claims *auth.AppClaims) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), userContextKey, claims))
}

func withChiParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func createTestNodeAPI(t *testing.T, name string, isFolder bool, parentID *string, ownerID string) *models.Node {
	t.Helper()
	id := uuid.NewString()

	params := database.CreateNodeParams{
		ID:       id,
		OwnerID:  ownerID,
		ParentID: parentID,
		Name:     name,
		Path:     ownerID,
		IsFolder: isFolder,
		MimeType: "folder",
	}
	if !isFolder {
		blobURL := "https://blobs.test/" + ownerID + "/" + id
		params.Path = ownerID + "/" + id
		params.SizeBytes = 1234
		params.MimeType = "image/png"
		params.BlobURL = &blobURL
	}

	node, err := testServer.store.CreateNode(context.Background(), params)
	require.NoError(t, err)
	return node
}

func newUploadRequest(t *testing.T, fileName, contentType string, data []byte, userID, parentID string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName))
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)

	require.NoError(t, writer.WriteField("userId", userID))
	if parentID != "" {
		require.NoError(t, writer.WriteField("parentId", parentID))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/v1/nodes/file", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestAPI_UploadFile_Success(t *testing.T) {
	// Arrange: 10 bajtów, poprawny typ obrazka
	data := []byte("0123456789")
	req := newUploadRequest(t, "a.png", "image/png", data, testUserClaims.OwnerID(), "")
	rr := httptest.NewRecorder()

	// Act
	http.HandlerFunc(testServer.UploadFileHandler).ServeHTTP(rr, asUser(req, testUserClaims))

	// Assert
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var node models.Node
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &node))
	require.False(t, node.IsFolder)
	require.Equal(t, int64(10), node.SizeBytes)
	require.Equal(t, "a.png", node.Name)
	require.NotNil(t, node.BlobURL)
	require.NotEmpty(t, *node.BlobURL)
	require.True(t, strings.HasPrefix(node.Path, testUserClaims.OwnerID()+"/"))
	require.True(t, testBlobStore.has(node.Path))

	// Udany upload zostawia wpis w dzienniku zdarzeń
	var journaled int
	err := testServer.store.GetPool().QueryRow(context.Background(),
		`SELECT count(*) FROM event_journal
		 WHERE owner_id = $1 AND event_type = 'node_created' AND payload->'payload'->>'id' = $2`,
		testUserClaims.OwnerID(), node.ID).Scan(&journaled)
	require.NoError(t, err)
	require.Equal(t, 1, journaled)
}

func TestAPI_UploadFile_ForeignParent(t *testing.T) {
	// Folder należy do innego użytkownika
	foreignFolder := createTestNodeAPI(t, "Beta Folder", true, nil, otherUserClaims.OwnerID())

	req := newUploadRequest(t, "b.png", "image/png", []byte("data"), testUserClaims.OwnerID(), foreignFolder.ID)
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.UploadFileHandler).ServeHTTP(rr, asUser(req, testUserClaims))

	require.Equal(t, http.StatusNotFound, rr.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "Parent folder not found", resp.Error)
}

func TestAPI_UploadFile_OwnerMismatch(t *testing.T) {
	req := newUploadRequest(t, "c.png", "image/png", []byte("data"), "somebody-else", "")
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.UploadFileHandler).ServeHTTP(rr, asUser(req, testUserClaims))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAPI_UploadFile_UnsupportedType(t *testing.T) {
	req := newUploadRequest(t, "notes.txt", "text/plain", []byte("hello"), testUserClaims.OwnerID(), "")
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.UploadFileHandler).ServeHTTP(rr, asUser(req, testUserClaims))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_UploadFile_MissingFile(t *testing.T) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("userId", testUserClaims.OwnerID()))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/v1/nodes/file", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.UploadFileHandler).ServeHTTP(rr, asUser(req, testUserClaims))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_CreateFolder_Success(t *testing.T) {
	payload := CreateFolderRequest{Name: "Nowy_Folder_Sukces"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/api/v1/nodes/folder", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.CreateFolderHandler).ServeHTTP(rr, asUser(req, testUserClaims))

	require.Equal(t, http.StatusCreated, rr.Code)
	var createdNode models.Node
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &createdNode))
	require.Equal(t, "Nowy_Folder_Sukces", createdNode.Name)
	require.True(t, createdNode.IsFolder)
}

func TestAPI_CreateFolder_EmptyName(t *testing.T) {
	payload := CreateFolderRequest{Name: "  "}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/api/v1/nodes/folder", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.CreateFolderHandler).ServeHTTP(rr, asUser(req, testUserClaims))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_CreateFolder_NameConflict(t *testing.T) {
	folderName := "Folder_Konfliktowy"
	createTestNodeAPI(t, folderName, true, nil, testUserClaims.OwnerID())

	payload := CreateFolderRequest{Name: folderName}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/api/v1/nodes/folder", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.CreateFolderHandler).ServeHTTP(rr, asUser(req, testUserClaims))

	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestListNodesHandler(t *testing.T) {
	parentFolder := createTestNodeAPI(t, "List Parent Folder", true, nil, testUserClaims.OwnerID())
	childFile := createTestNodeAPI(t, "list_child.png", false, &parentFolder.ID, testUserClaims.OwnerID())

	t.Run("should list root directory", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/nodes", nil)
		rr := httptest.NewRecorder()

		http.HandlerFunc(testServer.ListNodesHandler).ServeHTTP(rr, asUser(req, testUserClaims))

		require.Equal(t, http.StatusOK, rr.Code)
		var nodes []models.Node
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &nodes))

		found := false
		for _, node := range nodes {
			if node.ID == parentFolder.ID {
				found = true
				break
			}
		}
		require.True(t, found, "Expected to find the created parent folder in the root listing")
	})

	t.Run("should list subdirectory content", func(t *testing.T) {
		url := fmt.Sprintf("/api/v1/nodes?parent_id=%s", parentFolder.ID)
		req := httptest.NewRequest("GET", url, nil)
		rr := httptest.NewRecorder()

		http.HandlerFunc(testServer.ListNodesHandler).ServeHTTP(rr, asUser(req, testUserClaims))

		require.Equal(t, http.StatusOK, rr.Code)
		var nodes []models.Node
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &nodes))
		require.Len(t, nodes, 1)
		require.Equal(t, childFile.ID, nodes[0].ID)
	})

	t.Run("should not see another user's nodes", func(t *testing.T) {
		url := fmt.Sprintf("/api/v1/nodes?parent_id=%s", parentFolder.ID)
		req := httptest.NewRequest("GET", url, nil)
		rr := httptest.NewRecorder()

		http.HandlerFunc(testServer.ListNodesHandler).ServeHTTP(rr, asUser(req, otherUserClaims))

		require.Equal(t, http.StatusOK, rr.Code)
		var nodes []models.Node
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &nodes))
		require.Len(t, nodes, 0)
	})
}

func TestDownloadFileHandler(t *testing.T) {
	// Wgraj plik przez API, żeby bloby naprawdę istniały
	data := []byte("zawartosc pliku do pobrania")
	uploadReq := newUploadRequest(t, "download_me.pdf", "application/pdf", data, testUserClaims.OwnerID(), "")
	uploadRR := httptest.NewRecorder()
	http.HandlerFunc(testServer.UploadFileHandler).ServeHTTP(uploadRR, asUser(uploadReq, testUserClaims))
	require.Equal(t, http.StatusOK, uploadRR.Code)

	var uploaded models.Node
	require.NoError(t, json.Unmarshal(uploadRR.Body.Bytes(), &uploaded))

	req := httptest.NewRequest("GET", "/api/v1/nodes/"+uploaded.ID+"/download", nil)
	req = withChiParam(asUser(req, testUserClaims), "nodeId", uploaded.ID)
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.DownloadFileHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, data, rr.Body.Bytes())
	require.Contains(t, rr.Header().Get("Content-Disposition"), "download_me.pdf")
	require.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))

	t.Run("folder cannot be downloaded", func(t *testing.T) {
		folder := createTestNodeAPI(t, "Download Folder", true, nil, testUserClaims.OwnerID())
		req := httptest.NewRequest("GET", "/api/v1/nodes/"+folder.ID+"/download", nil)
		req = withChiParam(asUser(req, testUserClaims), "nodeId", folder.ID)
		rr := httptest.NewRecorder()

		http.HandlerFunc(testServer.DownloadFileHandler).ServeHTTP(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("foreign file is invisible", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/nodes/"+uploaded.ID+"/download", nil)
		req = withChiParam(asUser(req, otherUserClaims), "nodeId", uploaded.ID)
		rr := httptest.NewRecorder()

		http.HandlerFunc(testServer.DownloadFileHandler).ServeHTTP(rr, req)

		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func patchNode(t *testing.T, claims *auth.AppClaims, nodeID string, payload UpdateNodeRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest("PATCH", "/api/v1/nodes/"+nodeID, bytes.NewReader(body))
	req = withChiParam(asUser(req, claims), "nodeId", nodeID)
	rr := httptest.NewRecorder()
	http.HandlerFunc(testServer.UpdateNodeHandler).ServeHTTP(rr, req)
	return rr
}

func TestAPI_UpdateNode_Rename(t *testing.T) {
	node := createTestNodeAPI(t, "stara_nazwa.png", false, nil, testUserClaims.OwnerID())

	newName := "nowa_nazwa.png"
	rr := patchNode(t, testUserClaims, node.ID, UpdateNodeRequest{Name: &newName})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated models.Node
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	require.Equal(t, newName, updated.Name)
}

func TestAPI_UpdateNode_Move(t *testing.T) {
	folder := createTestNodeAPI(t, "Move Target", true, nil, testUserClaims.OwnerID())
	node := createTestNodeAPI(t, "do_przeniesienia.png", false, nil, testUserClaims.OwnerID())

	rr := patchNode(t, testUserClaims, node.ID, UpdateNodeRequest{ParentID: &folder.ID})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated models.Node
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	require.NotNil(t, updated.ParentID)
	require.Equal(t, folder.ID, *updated.ParentID)

	t.Run("move back to root", func(t *testing.T) {
		root := ""
		rr := patchNode(t, testUserClaims, node.ID, UpdateNodeRequest{ParentID: &root})
		require.Equal(t, http.StatusOK, rr.Code)
		var updated models.Node
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
		require.Nil(t, updated.ParentID)
	})
}

func TestAPI_UpdateNode_MoveIntoOwnSubtree(t *testing.T) {
	// a -> b, próba przeniesienia a pod b tworzy cykl
	folderA := createTestNodeAPI(t, "Cycle A", true, nil, testUserClaims.OwnerID())
	folderB := createTestNodeAPI(t, "Cycle B", true, &folderA.ID, testUserClaims.OwnerID())

	rr := patchNode(t, testUserClaims, folderA.ID, UpdateNodeRequest{ParentID: &folderB.ID})
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	// Przeniesienie do samego siebie też jest cyklem
	rr = patchNode(t, testUserClaims, folderA.ID, UpdateNodeRequest{ParentID: &folderA.ID})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_UpdateNode_MoveToForeignFolder(t *testing.T) {
	node := createTestNodeAPI(t, "cudzy_cel.png", false, nil, testUserClaims.OwnerID())
	foreignFolder := createTestNodeAPI(t, "Foreign Move Target", true, nil, otherUserClaims.OwnerID())

	rr := patchNode(t, testUserClaims, node.ID, UpdateNodeRequest{ParentID: &foreignFolder.ID})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_UpdateNode_NoOperation(t *testing.T) {
	node := createTestNodeAPI(t, "bez_operacji.png", false, nil, testUserClaims.OwnerID())

	rr := patchNode(t, testUserClaims, node.ID, UpdateNodeRequest{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_StarNode(t *testing.T) {
	node := createTestNodeAPI(t, "gwiazdka.png", false, nil, testUserClaims.OwnerID())

	req := httptest.NewRequest("POST", "/api/v1/nodes/"+node.ID+"/star", nil)
	req = withChiParam(asUser(req, testUserClaims), "nodeId", node.ID)
	rr := httptest.NewRecorder()
	http.HandlerFunc(testServer.StarNodeHandler).ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	listReq := httptest.NewRequest("GET", "/api/v1/starred", nil)
	listRR := httptest.NewRecorder()
	http.HandlerFunc(testServer.ListStarredHandler).ServeHTTP(listRR, asUser(listReq, testUserClaims))
	require.Equal(t, http.StatusOK, listRR.Code)

	var starred []models.Node
	require.NoError(t, json.Unmarshal(listRR.Body.Bytes(), &starred))
	found := false
	for _, n := range starred {
		if n.ID == node.ID {
			found = true
		}
	}
	require.True(t, found)

	unstarReq := httptest.NewRequest("DELETE", "/api/v1/nodes/"+node.ID+"/star", nil)
	unstarReq = withChiParam(asUser(unstarReq, testUserClaims), "nodeId", node.ID)
	unstarRR := httptest.NewRecorder()
	http.HandlerFunc(testServer.UnstarNodeHandler).ServeHTTP(unstarRR, unstarReq)
	require.Equal(t, http.StatusNoContent, unstarRR.Code)

	// Obie zmiany flagi trafiły do dziennika zdarzeń
	var journaled int
	err := testServer.store.GetPool().QueryRow(context.Background(),
		`SELECT count(*) FROM event_journal
		 WHERE owner_id = $1 AND event_type = 'node_updated' AND payload->'payload'->>'id' = $2`,
		testUserClaims.OwnerID(), node.ID).Scan(&journaled)
	require.NoError(t, err)
	require.Equal(t, 2, journaled)

	t.Run("foreign node cannot be starred", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/nodes/"+node.ID+"/star", nil)
		req = withChiParam(asUser(req, otherUserClaims), "nodeId", node.ID)
		rr := httptest.NewRecorder()
		http.HandlerFunc(testServer.StarNodeHandler).ServeHTTP(rr, req)
		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}

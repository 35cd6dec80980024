package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"studymate/internal/auth"
	"studymate/internal/chat"
	"studymate/internal/config"
	"studymate/internal/extract"
	"studymate/internal/models"
	"studymate/internal/providers"
	"studymate/internal/retrieval"
	"studymate/internal/storage"
	"studymate/internal/util"
	"studymate/internal/vector"
	"studymate/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg              config.Config
	db               *storage.DB
	materialRepo     *storage.MaterialRepo
	conversationRepo *storage.ConversationRepo
	messageRepo      *storage.MessageRepo
	chunkRepo        *storage.ChunkRepo
	streakRepo       *storage.StreakRepo
	index            *vector.Store
	chat             *chat.Service
	providers        *providers.Manager
	temporal         tclient.Client
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}

	materialRepo := storage.NewMaterialRepo(db)
	conversationRepo := storage.NewConversationRepo(db)
	messageRepo := storage.NewMessageRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	streakRepo := storage.NewStreakRepo(db)
	index := vector.NewStore()

	// The manager satisfies both provider interfaces and applies the
	// preferred failover order on every call.
	svc := chat.NewService(
		conversationRepo,
		messageRepo,
		retrieval.NewSelector(materialRepo),
		streakRepo,
		pm,
		pm,
		index,
		time.Duration(cfg.GenerateTimeoutSecs)*time.Second,
	)

	s := &Server{
		cfg:              cfg,
		db:               db,
		materialRepo:     materialRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		chunkRepo:        chunkRepo,
		streakRepo:       streakRepo,
		index:            index,
		chat:             svc,
		providers:        pm,
		temporal:         tc,
	}
	if err := s.hydrateIndex(context.Background()); err != nil {
		log.Printf("vector index hydration failed, continuing with empty index: %v", err)
	}
	return s
}

// hydrateIndex rebuilds the in-memory candidate index from persisted chunk
// embeddings. The worker owns writes to material_chunks; the API only reads
// them back at startup.
func (s *Server) hydrateIndex(ctx context.Context) error {
	records, err := s.chunkRepo.ListEmbeddedChunks(ctx)
	if err != nil {
		return err
	}
	byMaterial := map[string][]storage.ChunkRecord{}
	order := make([]string, 0, 16)
	for _, rec := range records {
		if _, ok := byMaterial[rec.MaterialID]; !ok {
			order = append(order, rec.MaterialID)
		}
		byMaterial[rec.MaterialID] = append(byMaterial[rec.MaterialID], rec)
	}
	for _, materialID := range order {
		recs := byMaterial[materialID]
		chunks := make([]vector.Chunk, 0, len(recs))
		embeddings := make([][]float32, 0, len(recs))
		for _, rec := range recs {
			chunks = append(chunks, vector.Chunk{
				ChunkID: rec.ChunkID,
				Text:    rec.Text,
				Meta:    map[string]string{"title": rec.MaterialTitle},
			})
			embeddings = append(embeddings, rec.Embedding)
		}
		if err := s.index.AddDocument(materialID, chunks, embeddings); err != nil {
			return fmt.Errorf("hydrate material %s: %w", materialID, err)
		}
	}
	log.Printf("vector index hydrated materials=%d chunks=%d", s.index.Len(), len(records))
	return nil
}

func (s *Server) Routes() http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("/chat/message", s.handleChatMessage)
	protected.HandleFunc("/conversations", s.handleConversations)
	protected.HandleFunc("/conversations/", s.handleConversationsScoped)
	protected.HandleFunc("/materials", s.handleMaterials)
	protected.HandleFunc("/materials/", s.handleMaterialsScoped)
	protected.HandleFunc("/ask", s.handleAsk)
	protected.HandleFunc("/streak", s.handleStreak)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/", auth.Middleware(s.cfg.JWTSecret, protected))
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}
	var req struct {
		ConversationID *string `json:"conversation_id,omitempty"`
		Content        string  `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("content is required"))
		return
	}
	result, err := s.chat.SendMessage(r.Context(), p, req.ConversationID, req.Content)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}
	conversations, err := s.conversationRepo.ListConversations(r.Context(), p.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (s *Server) handleConversationsScoped(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/conversations/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	conversationID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		if err := s.conversationRepo.SoftDeleteConversation(r.Context(), conversationID, p.ID); err != nil {
			if errors.Is(err, util.ErrNotFound) {
				writeErr(w, http.StatusNotFound, err)
				return
			}
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": conversationID})
		return
	}

	if len(parts) == 2 && parts[1] == "messages" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		conversation, err := s.conversationRepo.GetConversation(r.Context(), conversationID, p.ID)
		if err != nil {
			if errors.Is(err, util.ErrNotFound) {
				writeErr(w, http.StatusNotFound, err)
				return
			}
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		messages, err := s.messageRepo.ListMessages(r.Context(), conversationID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversation": conversation, "messages": messages})
		return
	}

	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) handleMaterials(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		materials, err := s.materialRepo.ListEligibleNewest(r.Context(), p)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"materials": materials})
	case http.MethodPost:
		s.handleUpload(w, r, p)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, p models.Principal) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	fh, ok := singleFile(r.MultipartForm.File)
	if !ok {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no file provided"))
		return
	}
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(fh.Filename), filepath.Ext(fh.Filename))
	}
	category := models.MaterialCategory(strings.TrimSpace(r.FormValue("category")))
	switch category {
	case models.CategoryCourseMaterial, models.CategoryPastQuestion, models.CategoryPersonalNote:
	case "":
		category = models.CategoryPersonalNote
	default:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown category %q", category))
		return
	}

	src, err := fh.Open()
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("open upload: %w", err))
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("read upload: %w", err))
		return
	}

	fileType := fh.Header.Get("Content-Type")
	content, err := extract.Text(data, fh.Filename, fileType)
	if err != nil {
		if errors.Is(err, util.ErrUnsupportedFileType) || errors.Is(err, util.ErrNoExtractableText) {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	materialID := uuid.NewString()
	if err := util.EnsureDir(s.cfg.DataRoot); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	savedPath := util.SafeJoin(s.cfg.DataRoot, materialID+"-"+filepath.Base(fh.Filename))
	if err := os.WriteFile(savedPath, data, 0o644); err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("save upload: %w", err))
		return
	}

	material := models.Material{
		MaterialID: materialID,
		Title:      title,
		Content:    content,
		URL:        savedPath,
		FileType:   fileType,
		Category:   category,
		Department: optionalString(r.FormValue("department")),
		YearLevel:  optionalInt(r.FormValue("year_level")),
		IsPublic:   r.FormValue("is_public") == "true",
		UploadedBy: &p.ID,
		Status:     "pending",
	}
	if err := s.materialRepo.CreateMaterial(r.Context(), material); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:        "material-" + materialID,
		TaskQueue: s.cfg.TemporalTaskQueue,
	}, workflows.MaterialIngestWorkflow, workflows.MaterialIngestInput{
		MaterialID:     materialID,
		Path:           savedPath,
		Filename:       filepath.Base(fh.Filename),
		FileType:       fileType,
		ChunkSize:      s.cfg.ChunkSize,
		ChunkOverlap:   s.cfg.ChunkOverlap,
		EmbedVersion:   s.cfg.EmbedVersion,
		EmbedProviders: s.providers.EmbedCount(),
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"material_id": materialID,
		"title":       title,
		"status":      "pending",
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

func (s *Server) handleMaterialsScoped(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.PrincipalFrom(r.Context()); !ok {
		writeErr(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/materials/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	materialID := parts[0]

	if parts[1] == "reingest" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleReingest(w, r, materialID)
		return
	}
	if parts[1] != "status" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	var status workflows.MaterialStatus
	resp, err := s.temporal.QueryWorkflow(r.Context(), "material-"+materialID, "", workflows.QueryGetMaterialStatus)
	if err != nil {
		// Fall back to the persisted status when no live workflow answers.
		m, mErr := s.materialRepo.GetMaterial(r.Context(), materialID)
		if mErr != nil {
			if errors.Is(mErr, util.ErrNotFound) {
				writeErr(w, http.StatusNotFound, mErr)
				return
			}
			writeErr(w, http.StatusInternalServerError, mErr)
			return
		}
		writeJSON(w, http.StatusOK, workflows.MaterialStatus{
			MaterialID: materialID,
			Status:     m.Status,
			FailReason: m.FailReason,
		})
		return
	}
	if err := resp.Get(&status); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReingest restarts the ingestion pipeline for an already uploaded
// material, reusing the stable per-material workflow ID.
func (s *Server) handleReingest(w http.ResponseWriter, r *http.Request, materialID string) {
	m, err := s.materialRepo.GetMaterial(r.Context(), materialID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if m.URL == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("material has no stored file"))
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       "material-" + materialID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.MaterialIngestWorkflow, workflows.MaterialIngestInput{
		MaterialID:     materialID,
		Path:           m.URL,
		Filename:       filepath.Base(m.URL),
		FileType:       m.FileType,
		ChunkSize:      s.cfg.ChunkSize,
		ChunkOverlap:   s.cfg.ChunkOverlap,
		EmbedVersion:   s.cfg.EmbedVersion,
		EmbedProviders: s.providers.EmbedCount(),
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if _, ok := auth.PrincipalFrom(r.Context()); !ok {
		writeErr(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}
	result, err := s.chat.Ask(r.Context(), req.Question)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}
	streak, err := s.streakRepo.GetStreak(r.Context(), p.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, streak)
}

func singleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	if files := m["file"]; len(files) > 0 {
		return files[0], true
	}
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func optionalInt(v string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return nil
	}
	return &n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "SM-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500 && status != http.StatusBadGateway:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "SM-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "SM-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "SM-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "SM-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusUnauthorized:
		code = "SM-API-4010"
		msg = "Authentication is required for this endpoint."
	case status == http.StatusNotFound:
		code = "SM-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "SM-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "SM-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "SM-API-5020"
		msg = "Upstream provider unavailable. Retry shortly."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "content is required"):
			msg = "Message content is required."
		case strings.Contains(raw, "question is required"):
			msg = "A question is required."
		case strings.Contains(raw, "no file provided"):
			msg = "No file was provided."
		case strings.Contains(raw, "unsupported file type"):
			msg = "This file type is not supported. Upload a PDF or plain text file."
		case strings.Contains(raw, "no extractable text"):
			msg = "No readable text was found in the uploaded file."
		case strings.Contains(raw, "unknown category"):
			msg = "Material category must be course_material, past_question or personal_note."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

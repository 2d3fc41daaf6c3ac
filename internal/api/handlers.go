package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/studyden/backend/internal/auth"
	"github.com/studyden/backend/internal/db"
	"github.com/studyden/backend/internal/room"
)

type API struct {
	dir      *room.Directory
	auth     *auth.Service
	database *db.Database
}

func New(dir *room.Directory, authService *auth.Service, database *db.Database) *API {
	return &API{
		dir:      dir,
		auth:     authService,
		database: database,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// rejectionResponse maps the engine's typed rejections onto client-visible
// statuses.
func rejectionResponse(w http.ResponseWriter, err error) {
	var validation *room.ValidationError
	var persistence *room.PersistenceError

	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		errorResponse(w, http.StatusNotFound, "Room not found")
	case errors.Is(err, room.ErrWrongPassword):
		errorResponse(w, http.StatusUnauthorized, "Invalid password")
	case errors.Is(err, room.ErrNotAuthorized):
		errorResponse(w, http.StatusForbidden, "Not authorized")
	case errors.Is(err, room.ErrRoomFull):
		errorResponse(w, http.StatusBadRequest, "Room is full")
	case errors.As(err, &validation):
		errorResponse(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &persistence):
		log.Error().Err(err).Msg("persistence failure")
		errorResponse(w, http.StatusInternalServerError, "Storage error")
	default:
		log.Error().Err(err).Msg("unexpected error")
		errorResponse(w, http.StatusInternalServerError, "Server error")
	}
}

// withAuth resolves the bearer token into a user id before calling next.
func (a *API) withAuth(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			errorResponse(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		userID, err := a.auth.VerifyToken(token)
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next(w, r, userID)
	}
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	liveRooms, liveSessions := a.dir.LiveCounts()
	stats := map[string]any{
		"active_rooms":    liveRooms,
		"active_sessions": liveSessions,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats(r.Context())
		if err == nil {
			stats["total_rooms"] = dbStats["room_count"]
			stats["total_users"] = dbStats["user_count"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Auth handlers

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string   `json:"token"`
	User  *db.User `json:"user"`
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, token, err := a.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			errorResponse(w, http.StatusConflict, "Email already registered")
			return
		}
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	jsonResponse(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, token, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			errorResponse(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		errorResponse(w, http.StatusInternalServerError, "Login failed")
		return
	}

	jsonResponse(w, http.StatusOK, authResponse{Token: token, User: user})
}

// Room handlers

// RoomResponse is the client-visible projection of the room document. The
// password hash never leaves the server.
type RoomResponse struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	CreatorID    string             `json:"creator_id"`
	Participants []string           `json:"participants"`
	Capacity     int                `json:"capacity"`
	Private      bool               `json:"private"`
	Whiteboard   string             `json:"whiteboard"`
	Music        room.MusicState    `json:"music"`
	Pomodoro     room.PomodoroState `json:"pomodoro"`
	CreatedAt    time.Time          `json:"created_at"`
	LastActive   time.Time          `json:"last_active"`
}

func toRoomResponse(r *room.Room) RoomResponse {
	return RoomResponse{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		CreatorID:    r.CreatorID,
		Participants: r.Participants,
		Capacity:     r.Capacity,
		Private:      r.Private,
		Whiteboard:   r.Whiteboard,
		Music:        r.Music,
		Pomodoro:     r.Pomodoro,
		CreatedAt:    r.CreatedAt,
		LastActive:   r.LastActive,
	}
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Capacity    int    `json:"capacity"`
	Private     bool   `json:"private"`
	Password    string `json:"password"`
}

func (a *API) listRoomsHandler(w http.ResponseWriter, r *http.Request, _ string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	rooms, err := a.dir.ListPublicRooms(r.Context(), limit, offset)
	if err != nil {
		rejectionResponse(w, err)
		return
	}

	response := make([]RoomResponse, len(rooms))
	for i, rm := range rooms {
		response[i] = toRoomResponse(rm)
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"rooms":  response,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) createRoomHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := a.dir.CreateRoom(r.Context(), room.CreateSpec{
		Name:        req.Name,
		Description: req.Description,
		CreatorID:   userID,
		Capacity:    req.Capacity,
		Private:     req.Private,
		Password:    req.Password,
	})
	if err != nil {
		rejectionResponse(w, err)
		return
	}

	jsonResponse(w, http.StatusCreated, toRoomResponse(created))
}

func (a *API) getRoomHandler(w http.ResponseWriter, r *http.Request, roomID string) {
	rm, err := a.dir.GetRoom(r.Context(), roomID)
	if err != nil {
		rejectionResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toRoomResponse(rm))
}

type joinRoomRequest struct {
	Password string `json:"password"`
}

func (a *API) joinRoomHandler(w http.ResponseWriter, r *http.Request, roomID, userID string) {
	var req joinRoomRequest
	if r.Body != nil {
		// Body is optional for public rooms.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	rm, err := a.dir.Join(r.Context(), roomID, userID, req.Password)
	if err != nil {
		rejectionResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toRoomResponse(rm))
}

func (a *API) leaveRoomHandler(w http.ResponseWriter, r *http.Request, roomID, userID string) {
	rm, err := a.dir.Leave(r.Context(), roomID, userID)
	if err != nil {
		rejectionResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toRoomResponse(rm))
}

type updateMetadataRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Capacity    *int    `json:"capacity"`
	Private     *bool   `json:"private"`
	Password    *string `json:"password"`
}

func (a *API) updateMetadataHandler(w http.ResponseWriter, r *http.Request, roomID, userID string) {
	var req updateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rm, err := a.dir.UpdateMetadata(r.Context(), roomID, userID, room.MetadataUpdate{
		Name:        req.Name,
		Description: req.Description,
		Capacity:    req.Capacity,
		Private:     req.Private,
		Password:    req.Password,
	})
	if err != nil {
		rejectionResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toRoomResponse(rm))
}

type updateWhiteboardRequest struct {
	Content string `json:"content"`
}

func (a *API) updateWhiteboardHandler(w http.ResponseWriter, r *http.Request, roomID, userID string) {
	var req updateWhiteboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rm, err := a.dir.UpdateWhiteboard(r.Context(), roomID, userID, req.Content)
	if err != nil {
		rejectionResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toRoomResponse(rm))
}

func (a *API) updateMusicHandler(w http.ResponseWriter, r *http.Request, roomID, userID string) {
	var req room.MusicState
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rm, err := a.dir.UpdateMusic(r.Context(), roomID, userID, req)
	if err != nil {
		rejectionResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toRoomResponse(rm))
}

func (a *API) updatePomodoroHandler(w http.ResponseWriter, r *http.Request, roomID, userID string) {
	var req room.PomodoroState
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rm, err := a.dir.UpdatePomodoro(r.Context(), roomID, userID, req)
	if err != nil {
		rejectionResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toRoomResponse(rm))
}

// RoomsRouter dispatches /api/rooms and everything below it.
func (a *API) RoomsRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms")
	path = strings.Trim(path, "/")

	// /api/rooms
	if path == "" {
		switch r.Method {
		case http.MethodGet:
			a.withAuth(a.listRoomsHandler)(w, r)
		case http.MethodPost:
			a.withAuth(a.createRoomHandler)(w, r)
		default:
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	parts := strings.Split(path, "/")
	roomID := parts[0]

	// /api/rooms/{id}
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			a.withAuth(func(w http.ResponseWriter, r *http.Request, _ string) {
				a.getRoomHandler(w, r, roomID)
			})(w, r)
		case http.MethodPut:
			a.withAuth(func(w http.ResponseWriter, r *http.Request, userID string) {
				a.updateMetadataHandler(w, r, roomID, userID)
			})(w, r)
		default:
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if len(parts) != 2 {
		errorResponse(w, http.StatusNotFound, "Not found")
		return
	}

	type roomAction struct {
		method  string
		handler func(w http.ResponseWriter, r *http.Request, roomID, userID string)
	}
	actions := map[string]roomAction{
		"join":       {http.MethodPost, a.joinRoomHandler},
		"leave":      {http.MethodPost, a.leaveRoomHandler},
		"whiteboard": {http.MethodPut, a.updateWhiteboardHandler},
		"music":      {http.MethodPut, a.updateMusicHandler},
		"pomodoro":   {http.MethodPut, a.updatePomodoroHandler},
	}

	action, ok := actions[parts[1]]
	if !ok {
		errorResponse(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != action.method {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	a.withAuth(func(w http.ResponseWriter, r *http.Request, userID string) {
		action.handler(w, r, roomID, userID)
	})(w, r)
}

// AuthRouter dispatches /api/auth/register and /api/auth/login.
func (a *API) AuthRouter(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimPrefix(r.URL.Path, "/api/auth/") {
	case "register":
		a.RegisterHandler(w, r)
	case "login":
		a.LoginHandler(w, r)
	default:
		errorResponse(w, http.StatusNotFound, "Not found")
	}
}

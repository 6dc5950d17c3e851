package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wfunc/gametrack/catalog"
	"github.com/wfunc/gametrack/logger"
	"github.com/wfunc/gametrack/models"
	"github.com/wfunc/gametrack/services"
)

// maxUploadSize bounds cover/avatar uploads.
const maxUploadSize = 8 << 20 // 8 MiB

func (s *GameServer) buildRouter() *mux.Router {
	r := mux.NewRouter()

	// Public surface
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/game-info/{id}", s.handleGameInfo).Methods(http.MethodGet)
	r.HandleFunc("/game-cover/{id}", s.handleGameCover).Methods(http.MethodGet)
	r.HandleFunc("/image/user/{id}", s.handleUserAvatar).Methods(http.MethodGet)

	// Authenticated surface
	authed := r.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/games", s.handleListGames).Methods(http.MethodGet)
	authed.HandleFunc("/create-game", s.handleCreateGame).Methods(http.MethodPost)
	authed.HandleFunc("/profile", s.handleProfile).Methods(http.MethodGet)
	authed.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	authed.HandleFunc("/settings/update", s.handleUpdateSettings).Methods(http.MethodPost)
	authed.HandleFunc("/settings/delete-account", s.handleDeleteAccount).Methods(http.MethodDelete)
	authed.HandleFunc("/user-games", s.handleUserGames).Methods(http.MethodGet)
	authed.HandleFunc("/user-games", s.handleSetStatus).Methods(http.MethodPost)
	authed.HandleFunc("/user-added", s.handleUserAdded).Methods(http.MethodGet)
	authed.HandleFunc("/user-games/{gameId}/rating", s.handleSetRating).Methods(http.MethodPut)
	authed.HandleFunc("/user-games/{gameId}/mark-played", s.handleMarkPlayed).Methods(http.MethodPut)
	authed.HandleFunc("/user-games/{gameId}", s.handleRemoveUserGame).Methods(http.MethodDelete)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Errorf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// serviceError maps known service errors to HTTP responses; anything
// unrecognized is a generic failure.
func serviceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, catalog.ErrGameNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrNotInLibrary),
		errors.Is(err, services.ErrUnknownGame):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrCoverMissing),
		errors.Is(err, services.ErrBadStatus),
		errors.Is(err, services.ErrRatingOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUsernameTaken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Log.Errorf("%s: %v", fallback, err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// --- Accounts ---

func (s *GameServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if _, err := s.userService.Register(req.Username, req.Password, req.Description); err != nil {
		serviceError(w, err, "Error registering user")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (s *GameServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.userService.Authenticate(req.Username, req.Password)
	if err != nil {
		serviceError(w, err, "Error during login")
		return
	}

	token, err := s.authManager.Issue(user.ID, user.Username)
	if err != nil {
		logger.Log.Errorf("Error issuing token: %v", err)
		writeError(w, http.StatusInternalServerError, "Error during login")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Login successful", "token": token})
}

func (s *GameServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	user, err := s.userService.Get(claims.UserID)
	if err != nil {
		serviceError(w, err, "Error fetching profile data")
		return
	}
	added, err := s.catalogService.GamesAddedBy(claims.UserID)
	if err != nil {
		serviceError(w, err, "Error fetching profile data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     user.ID,
		"username":    user.Username,
		"description": user.Description,
		"games":       added,
	})
}

func (s *GameServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	user, err := s.userService.Get(claims.UserID)
	if err != nil {
		serviceError(w, err, "Error fetching user settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"username":    user.Username,
		"description": user.Description,
	})
}

func (s *GameServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	user, err := s.userService.UpdateSettings(claims.UserID,
		r.FormValue("username"), r.FormValue("description"))
	if err != nil {
		serviceError(w, err, "Error updating profile")
		return
	}

	if avatar, ok := readUpload(r, "picture"); ok {
		if err := s.userService.SetAvatar(claims.UserID, avatar); err != nil {
			serviceError(w, err, "Error updating profile")
			return
		}
	}

	// 用户名可能已变更，重新签发令牌
	token, err := s.authManager.Issue(user.ID, user.Username)
	if err != nil {
		logger.Log.Errorf("Error reissuing token: %v", err)
		writeError(w, http.StatusInternalServerError, "Error updating profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Profile updated successfully!",
		"token":   token,
	})
}

func (s *GameServer) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	if err := s.userService.DeleteAccount(claims.UserID); err != nil {
		serviceError(w, err, "Error deleting account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deleted successfully!"})
}

func (s *GameServer) handleUserAvatar(w http.ResponseWriter, r *http.Request) {
	avatar, err := s.userService.GetAvatar(mux.Vars(r)["id"])
	if err != nil {
		serviceError(w, err, "Error fetching profile picture")
		return
	}
	w.Header().Set("Content-Type", avatar.ContentType)
	w.Write(avatar.Data)
}

// --- Catalog ---

func (s *GameServer) handleListGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := s.catalogService.ListGames(q.Get("query"), page, limit, q.Get("sort"))
	if err != nil {
		serviceError(w, err, "Error fetching games")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *GameServer) handleGameInfo(w http.ResponseWriter, r *http.Request) {
	game, err := s.catalogService.GetGameInfo(mux.Vars(r)["id"])
	if err != nil {
		serviceError(w, err, "Error fetching game details")
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (s *GameServer) handleGameCover(w http.ResponseWriter, r *http.Request) {
	cover, err := s.catalogService.GetGameCover(mux.Vars(r)["id"])
	if err != nil {
		serviceError(w, err, "Error fetching game cover")
		return
	}
	w.Header().Set("Content-Type", cover.ContentType)
	w.Write(cover.Data)
}

func (s *GameServer) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	releaseDate, err := time.Parse("2006-01-02", r.FormValue("releaseDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "releaseDate must be YYYY-MM-DD")
		return
	}

	cover, _ := readUpload(r, "cover")
	game, err := s.catalogService.CreateGame(
		r.FormValue("name"),
		r.FormValue("genre"),
		r.FormValue("description"),
		releaseDate,
		claims.UserID,
		cover,
	)
	if err != nil {
		serviceError(w, err, "Error adding game to the database")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Game added successfully!",
		"game_id": game.ID,
	})
}

// --- Library ---

// apiStatus maps the wire values to library statuses.
func apiStatus(v string) (models.LibraryStatus, bool) {
	switch v {
	case "played":
		return models.StatusPlayed, true
	case "to-play", "want_to_play":
		return models.StatusWantToPlay, true
	default:
		return "", false
	}
}

func (s *GameServer) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	var req struct {
		GameID string `json:"gameId"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, ok := apiStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	if err := s.libraryService.SetStatus(claims.UserID, req.GameID, status); err != nil {
		serviceError(w, err, "Error processing request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Game status updated to " + req.Status + "!"})
}

func (s *GameServer) handleMarkPlayed(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	gameID := mux.Vars(r)["gameId"]

	if _, err := s.libraryService.Get(claims.UserID, gameID); err != nil {
		serviceError(w, err, "Error marking game as played")
		return
	}
	if err := s.libraryService.SetStatus(claims.UserID, gameID, models.StatusPlayed); err != nil {
		serviceError(w, err, "Error marking game as played")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Game marked as played and moved to played list",
	})
}

func (s *GameServer) handleSetRating(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	var req struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.libraryService.SetRating(claims.UserID, mux.Vars(r)["gameId"], req.Rating); err != nil {
		serviceError(w, err, "Error updating rating")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Rating updated"})
}

func (s *GameServer) handleRemoveUserGame(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	if err := s.libraryService.Remove(claims.UserID, mux.Vars(r)["gameId"]); err != nil {
		serviceError(w, err, "Error removing game")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Game removed"})
}

func (s *GameServer) handleUserAdded(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	entries, err := s.libraryService.List(claims.UserID)
	if err != nil {
		serviceError(w, err, "Error fetching user games")
		return
	}
	if entries == nil {
		entries = []models.LibraryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *GameServer) handleUserGames(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	user, err := s.userService.Get(claims.UserID)
	if err != nil {
		serviceError(w, err, "Error fetching user games")
		return
	}
	played, wantToPlay, err := s.libraryService.Split(claims.UserID)
	if err != nil {
		serviceError(w, err, "Error fetching user games")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username":        user.Username,
		"description":     user.Description,
		"playedGames":     played,
		"wantToPlayGames": wantToPlay,
	})
}

// readUpload pulls one uploaded file out of a parsed multipart form.
func readUpload(r *http.Request, field string) (models.Cover, bool) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return models.Cover{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		return models.Cover{}, false
	}
	return models.Cover{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
	}, true
}

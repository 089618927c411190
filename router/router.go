package router

import (
	"database/sql"
	"net/http"

	"notesync/internal/auth"
	noteHandler "notesync/internal/note"
	"notesync/internal/note/repository"
	"notesync/internal/note/service"
	"notesync/internal/note/store"
	"notesync/middleware"
	"notesync/pkg/logger"
	"notesync/pkg/metrics"
	"notesync/socket"
)

func Setup(db *sql.DB, hub *socket.Hub, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	m := metrics.New()
	noteRepo := repository.NewNoteRepository(db)
	versions := store.NewPostgresStore(db)
	detector := service.NewConflictDetector(versions, noteRepo, m)
	resolver := service.NewResolutionCoordinator(detector, versions, noteRepo)
	noteService := service.NewNoteService(noteRepo, versions, detector, resolver, hub)
	notes := noteHandler.NewNoteHandler(noteService)

	authRepo := auth.NewUserRepository(db)
	authService := auth.NewAuthService(authRepo, jwtSecret)
	authAPI := auth.NewAuthHandler(authService)

	guard := middleware.AuthMiddleware(jwtSecret)

	// Watch feed: ownership is checked through the same read path as the API
	// before the connection upgrades, so non-owners never see content.
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(middleware.UserIDKey).(string)
		noteID := r.URL.Query().Get("noteId")
		if noteID == "" {
			http.Error(w, "Missing noteId parameter", http.StatusBadRequest)
			return
		}

		note, err := noteService.GetNote(r.Context(), userID, noteID)
		if err != nil {
			logger.Sugar.Infof("Watch rejected for note %s: %v", noteID, err)
			http.Error(w, "Unauthorized or note not found", http.StatusForbidden)
			return
		}

		socket.ServeWs(hub, w, r, userID, noteID, socket.UpdatePayload{
			Version:   note.Version,
			Title:     note.Title,
			Body:      note.Body,
			UpdatedAt: note.UpdatedAt,
		})
	})
	mux.Handle("/ws", guard(wsHandler))

	mux.Handle("/auth/register", http.HandlerFunc(authAPI.Register))
	mux.Handle("/auth/login", http.HandlerFunc(authAPI.Login))

	mux.Handle("/api/notes/create", guard(http.HandlerFunc(notes.CreateNote)))
	mux.Handle("/api/notes", guard(http.HandlerFunc(notes.GetNotes)))
	mux.Handle("/api/notes/get", guard(http.HandlerFunc(notes.GetNote)))
	mux.Handle("/api/notes/save", guard(http.HandlerFunc(notes.SaveNote)))
	mux.Handle("/api/notes/resolve", guard(http.HandlerFunc(notes.ResolveConflict)))
	mux.Handle("/api/notes/delete", guard(http.HandlerFunc(notes.DeleteNote)))

	mux.Handle("/metrics", m.Handler())

	return middleware.CORSMiddleware(mux)
}

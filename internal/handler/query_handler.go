/*
Package handler provides the read-only query surface over the hub's state.

These endpoints never mutate anything: they expose room summaries with live
membership counts, the user directory, and the recent history of a room.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pulsechat/internal/pkg/errs"
	"pulsechat/internal/pkg/resp"
)

// HandleListRooms returns the room catalog with live membership counts.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Hub.RoomSummaries())
	}
}

// HandleListUsers returns every user profile in the directory.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Hub.UserDirectory())
	}
}

// HandleRoomMessages returns the last 50 messages of a room.
func HandleRoomMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")

		messages, ok := deps.Hub.RoomHistory(roomID)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomNotFound))
			return
		}

		resp.RespondSuccess(w, r, messages)
	}
}

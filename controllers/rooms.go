package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"Greenroom/middleware"
	"Greenroom/models/postgres"
	"Greenroom/services/highlights"
	"Greenroom/services/rooms"
	"Greenroom/services/store"
	"Greenroom/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// Broadcaster pushes room events to the realtime channel. Nil-safe so the
// HTTP layer works without the socket server (tests, degraded mode).
type Broadcaster interface {
	BroadcastToRoom(roomID string, event string, payload interface{})
}

// PresenceStore drops the ephemeral presence snapshot of a room that no
// longer exists. Optional like Broadcaster; the keys carry a TTL anyway.
type PresenceStore interface {
	DeleteRoomPresence(roomID string) error
}

// RoomsController glues the lifecycle services to the HTTP surface. All
// domain decisions happen in the services; this layer only binds requests,
// resolves the caller's guest identity and serializes views.
type RoomsController struct {
	Manager    *rooms.Manager
	Machine    *rooms.StateMachine
	Prep       *rooms.PreparationTracker
	Store      store.RoomStore
	Highlights *highlights.Client
	Broadcast  Broadcaster
	Presence   PresenceStore
}

func (rc *RoomsController) broadcast(roomID, event string, payload interface{}) {
	if rc.Broadcast != nil {
		rc.Broadcast.BroadcastToRoom(roomID, event, payload)
	}
}

// --- view serialization (external field names) ---

type participantView struct {
	ParticipantID string                     `json:"participantId"`
	GuestUserID   string                     `json:"guestUserId"`
	Nickname      string                     `json:"nickname"`
	Role          string                     `json:"role"`
	JoinedAt      time.Time                  `json:"joinedAt"`
	Preparation   postgres.PreparationStatus `json:"preparationStatus"`
	IsFullyReady  bool                       `json:"isFullyReady"`
}

type roomView struct {
	RoomID            string            `json:"roomId"`
	RoomCode          string            `json:"roomCode"`
	Name              string            `json:"name"`
	State             string            `json:"state"`
	MaxCapacity       int               `json:"maxCapacity"`
	CurrentCapacity   int               `json:"currentCapacity"`
	HostParticipantID *string           `json:"hostParticipantId"`
	Settings          json.RawMessage   `json:"settings"`
	CreatedAt         time.Time         `json:"createdAt"`
	ExpiresAt         time.Time         `json:"expiresAt"`
	Participants      []participantView `json:"participants"`
}

func buildParticipantView(p *postgres.Participant) participantView {
	return participantView{
		ParticipantID: p.ID,
		GuestUserID:   p.GuestUserID,
		Nickname:      p.Nickname,
		Role:          p.Role,
		JoinedAt:      p.JoinedAt,
		Preparation:   p.Preparation,
		IsFullyReady:  p.Preparation.IsFullyReady(),
	}
}

func buildRoomView(view *store.RoomView) roomView {
	out := roomView{
		RoomID:            view.Room.ID,
		RoomCode:          view.Room.Code,
		Name:              view.Room.Name,
		State:             view.Room.State,
		MaxCapacity:       view.Room.MaxCapacity,
		CurrentCapacity:   view.CurrentCapacity,
		HostParticipantID: view.Room.HostParticipantID,
		Settings:          json.RawMessage(view.Room.Settings),
		CreatedAt:         view.Room.CreatedAt,
		ExpiresAt:         view.Room.ExpiresAt,
	}
	for i := range view.ActiveParticipants {
		out.Participants = append(out.Participants, buildParticipantView(&view.ActiveParticipants[i]))
	}
	return out
}

// resolveGuest maps the authenticated session onto a guest row, if any.
func (rc *RoomsController) resolveGuest(ctx context.Context, c *gin.Context) (*postgres.GuestUser, *rooms.Failure) {
	sessionID := middleware.SessionID(c)
	guest, err := rc.Store.GetGuestBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &rooms.Failure{Code: rooms.CodeNotFound, Reason: "no guest bound to this session"}
		}
		return nil, &rooms.Failure{Code: rooms.CodeInternal, Reason: "internal error"}
	}
	return guest, nil
}

// --- handlers ---

type createRoomRequest struct {
	RoomName     string          `json:"room_name"`
	MaxCapacity  int             `json:"max_capacity"`
	HostNickname string          `json:"host_nickname"`
	RoomSettings json.RawMessage `json:"room_settings"`
}

// @Summary Creates a new room
// @Description Creates a room with the calling guest as host and returns the join code
// @Tags rooms
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer guest session token"
// @Success 200 {object} utils.Envelope
// @Failure 400 {object} utils.Envelope
// @Failure 409 {object} utils.Envelope
// @Router /rooms [post]
func (rc *RoomsController) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.FailValidation(c, "malformed request body")
		return
	}

	view, host, failure := rc.Manager.CreateRoom(c.Request.Context(),
		req.RoomName, req.MaxCapacity, middleware.SessionID(c),
		req.HostNickname, datatypes.JSON(req.RoomSettings))
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	log.Printf("[ROOMS] created room %s (code %s) host participant %s",
		view.Room.ID, view.Room.Code, host.ID)

	utils.Success(c, gin.H{
		"room":            buildRoomView(view),
		"hostParticipant": buildParticipantView(host),
	})
}

type joinRoomRequest struct {
	RoomCode string `json:"room_code"`
	Nickname string `json:"nickname"`
}

// @Summary Joins a room by code
// @Description Adds the calling guest to the room behind the (case-insensitive) join code
// @Tags rooms
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer guest session token"
// @Success 200 {object} utils.Envelope
// @Failure 404 {object} utils.Envelope
// @Failure 409 {object} utils.Envelope
// @Router /rooms/join [post]
func (rc *RoomsController) JoinRoom(c *gin.Context) {
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.FailValidation(c, "malformed request body")
		return
	}

	view, participant, failure := rc.Manager.JoinRoom(c.Request.Context(),
		req.RoomCode, middleware.SessionID(c), req.Nickname)
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	rc.broadcast(view.Room.ID, "participant_joined", gin.H{
		"participantId":   participant.ID,
		"nickname":        participant.Nickname,
		"currentCapacity": view.CurrentCapacity,
	})

	utils.Success(c, gin.H{
		"room":        buildRoomView(view),
		"participant": buildParticipantView(participant),
	})
}

type leaveRoomRequest struct {
	ParticipantID string `json:"participant_id"`
}

// @Summary Leaves a room
// @Description Soft-closes the caller's join record; the host role moves to the oldest remaining participant
// @Tags rooms
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer guest session token"
// @Success 200 {object} utils.Envelope
// @Failure 403 {object} utils.Envelope
// @Failure 404 {object} utils.Envelope
// @Router /rooms/leave [post]
func (rc *RoomsController) LeaveRoom(c *gin.Context) {
	var req leaveRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.FailValidation(c, "malformed request body")
		return
	}

	failure := rc.requireOwnership(c, req.ParticipantID)
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	result, failure := rc.Manager.LeaveRoom(c.Request.Context(), req.ParticipantID)
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	payload := gin.H{
		"nickname":        result.Nickname,
		"currentCapacity": result.RemainingCapacity,
	}
	if result.PromotedHost != nil {
		payload["newHostParticipantId"] = result.PromotedHost.ID
		rc.broadcast(result.Room.ID, "host_changed", gin.H{
			"hostParticipantId": result.PromotedHost.ID,
			"nickname":          result.PromotedHost.Nickname,
		})
	}
	rc.broadcast(result.Room.ID, "participant_left", payload)

	utils.Success(c, gin.H{
		"roomCode":        result.Room.Code,
		"nickname":        result.Nickname,
		"currentCapacity": result.RemainingCapacity,
	})
}

// @Summary Ends a room
// @Description Host-only: hard-deletes the room, its participants and releases their guests
// @Tags rooms
// @Produce json
// @Param Authorization header string true "Bearer guest session token"
// @Param room_code path string true "Join code of the room"
// @Success 200 {object} utils.Envelope
// @Failure 403 {object} utils.Envelope
// @Failure 404 {object} utils.Envelope
// @Router /rooms/{room_code} [delete]
func (rc *RoomsController) EndRoom(c *gin.Context) {
	ctx := c.Request.Context()

	guest, failure := rc.resolveGuest(ctx, c)
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	view, failure := rc.Manager.GetRoom(ctx, c.Param("room_code"))
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	// The manager re-validates against the current host pointer under the
	// room lock; this lookup only translates guest -> participant id.
	var callerParticipantID string
	for _, p := range view.ActiveParticipants {
		if p.GuestUserID == guest.ID {
			callerParticipantID = p.ID
			break
		}
	}
	if callerParticipantID == "" {
		utils.Fail(c, &rooms.Failure{Code: rooms.CodeForbidden, Reason: "caller is not in this room"})
		return
	}

	result, failure := rc.Manager.EndRoom(ctx, callerParticipantID)
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	rc.broadcast(result.RoomID, "room_ended", gin.H{"roomCode": result.RoomCode})
	if rc.Presence != nil {
		if err := rc.Presence.DeleteRoomPresence(result.RoomID); err != nil {
			// The snapshot expires on its own TTL
			log.Printf("[ROOMS-ERROR] clearing presence for room %s: %v", result.RoomID, err)
		}
	}
	log.Printf("[ROOMS] ended room %s (code %s), %d participant records removed",
		result.RoomID, result.RoomCode, result.ParticipantCount)

	utils.Success(c, gin.H{
		"roomCode":         result.RoomCode,
		"name":             result.Name,
		"participantCount": result.ParticipantCount,
	})
}

// @Summary Gives info of a room
// @Description Given a room code, it will return the current room view
// @Tags rooms
// @Produce json
// @Param room_code path string true "Join code of the room"
// @Success 200 {object} utils.Envelope
// @Failure 404 {object} utils.Envelope
// @Router /rooms/{room_code} [get]
func (rc *RoomsController) GetRoomInfo(c *gin.Context) {
	view, failure := rc.Manager.GetRoom(c.Request.Context(), c.Param("room_code"))
	if failure != nil {
		utils.Fail(c, failure)
		return
	}
	utils.Success(c, buildRoomView(view))
}

type updateStateRequest struct {
	RoomState string `json:"room_state"`
}

// @Summary Changes the room state
// @Description Host-only transition between waiting/active/recording/expired
// @Tags rooms
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer guest session token"
// @Param room_code path string true "Join code of the room"
// @Success 200 {object} utils.Envelope
// @Failure 403 {object} utils.Envelope
// @Failure 422 {object} utils.Envelope
// @Router /rooms/{room_code}/state [patch]
func (rc *RoomsController) UpdateRoomState(c *gin.Context) {
	var req updateStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.FailValidation(c, "malformed request body")
		return
	}

	ctx := c.Request.Context()
	guest, failure := rc.resolveGuest(ctx, c)
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	view, failure := rc.Manager.GetRoom(ctx, c.Param("room_code"))
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	transition, failure := rc.Machine.RequestTransition(ctx,
		view.Room.ID, guest.ID, req.RoomState)
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	rc.broadcast(transition.RoomID, "room_state_changed", gin.H{
		"oldState": transition.OldState,
		"newState": transition.NewState,
	})

	utils.Success(c, gin.H{
		"roomId":   transition.RoomID,
		"roomCode": transition.RoomCode,
		"oldState": transition.OldState,
		"newState": transition.NewState,
	})
}

type updatePreparationRequest struct {
	CharacterSetup *bool `json:"character_setup"`
	ScreenSetup    *bool `json:"screen_setup"`
	FinalSetup     *bool `json:"final_setup"`
}

// @Summary Updates a participant's preparation status
// @Description Partial merge: absent fields keep their previous value
// @Tags rooms
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer guest session token"
// @Param participant_id path string true "Participant id"
// @Success 200 {object} utils.Envelope
// @Failure 404 {object} utils.Envelope
// @Router /participants/{participant_id}/preparation [patch]
func (rc *RoomsController) UpdatePreparation(c *gin.Context) {
	var req updatePreparationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.FailValidation(c, "malformed request body")
		return
	}

	participantID := c.Param("participant_id")
	if failure := rc.requireOwnership(c, participantID); failure != nil {
		utils.Fail(c, failure)
		return
	}

	view, failure := rc.Prep.UpdatePreparation(c.Request.Context(), participantID,
		store.PreparationPatch{
			CharacterReady: req.CharacterSetup,
			ScreenReady:    req.ScreenSetup,
			FinalReady:     req.FinalSetup,
		})
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	rc.broadcast(view.RoomID, "preparation_updated", gin.H{
		"participantId": view.ParticipantID,
		"status":        view.Status,
		"isFullyReady":  view.IsFullyReady,
	})

	utils.Success(c, gin.H{
		"participantId":     view.ParticipantID,
		"preparationStatus": view.Status,
		"isFullyReady":      view.IsFullyReady,
	})
}

type pipelineRequest struct {
	RoomState string `json:"room_state"` // processing | completed
}

// @Summary Media pipeline callback
// @Description Internal: advances recording->processing->completed on behalf of the media pipeline
// @Tags internal
// @Accept json
// @Produce json
// @Param X-Pipeline-Token header string true "Shared pipeline secret"
// @Param room_id path string true "Room id"
// @Success 200 {object} utils.Envelope
// @Failure 422 {object} utils.Envelope
// @Router /internal/pipeline/rooms/{room_id} [post]
func (rc *RoomsController) PipelineCallback(c *gin.Context) {
	var req pipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.FailValidation(c, "malformed request body")
		return
	}

	ctx := c.Request.Context()
	roomID := c.Param("room_id")

	// Snapshot the active participants before the terminal transition: the
	// highlight request needs them and a completed room may be swept soon.
	var participantIDs []string
	if view, err := rc.Store.GetRoomByID(ctx, roomID); err == nil {
		for _, p := range view.ActiveParticipants {
			participantIDs = append(participantIDs, p.ID)
		}
	}

	transition, failure := rc.Machine.ApplyPipelineTransition(ctx, roomID, req.RoomState)
	if failure != nil {
		utils.Fail(c, failure)
		return
	}

	rc.broadcast(transition.RoomID, "room_state_changed", gin.H{
		"oldState": transition.OldState,
		"newState": transition.NewState,
	})

	if transition.NewState == postgres.RoomStateCompleted && rc.Highlights.Enabled() {
		if err := rc.Highlights.RequestExtraction(ctx,
			transition.RoomID, transition.RoomCode, participantIDs); err != nil {
			// The extraction service retries on its own schedule
			log.Printf("[PIPELINE-ERROR] highlight extraction request failed: %v", err)
		}
	}

	utils.Success(c, gin.H{
		"roomId":   transition.RoomID,
		"oldState": transition.OldState,
		"newState": transition.NewState,
	})
}

// requireOwnership ensures the target participant belongs to the caller's
// guest session.
func (rc *RoomsController) requireOwnership(c *gin.Context, participantID string) *rooms.Failure {
	if participantID == "" {
		return &rooms.Failure{Code: rooms.CodeValidation, Reason: "participant id must not be empty"}
	}

	ctx := c.Request.Context()
	guest, failure := rc.resolveGuest(ctx, c)
	if failure != nil {
		return failure
	}

	participant, err := rc.Store.GetParticipant(ctx, participantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &rooms.Failure{Code: rooms.CodeNotFound, Reason: "participant not found"}
		}
		return &rooms.Failure{Code: rooms.CodeInternal, Reason: "internal error"}
	}
	if participant.GuestUserID != guest.ID {
		return &rooms.Failure{Code: rooms.CodeForbidden, Reason: "participant belongs to another guest"}
	}
	return nil
}

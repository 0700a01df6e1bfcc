package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"quizcast/internal/bus"
	"quizcast/internal/game"
	"quizcast/internal/store"
)

type createRoomPayload struct {
	HostName string `json:"hostName"`
	DeviceID string `json:"deviceId"`
}

// createRoom allocates a code, creates the room with the caller as host and
// binds the connection as the room's TV.
func (h *Handler) createRoom(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req createRoomPayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	ctx := context.Background()

	code, err := h.issueCode(ctx, h.store)
	if err != nil {
		h.log.Error().Err(err).Msg("room code allocation failed")
		ack(bus.AckError("Failed to create room"))
		return
	}

	room := game.NewRoom(code, c.ConnID(), req.HostName, h.defaultSettings())
	if err := h.store.Create(ctx, code, room); err != nil {
		h.log.Error().Err(err).Str("room", code).Msg("room create failed")
		ack(bus.AckError("Failed to create room"))
		return
	}

	c.SetData(func(d *bus.ConnData) {
		d.RoomCode = code
		d.Role = bus.RoleTV
		d.PlayerID = ""
	})
	h.bus.JoinRoom(c.ConnID(), code)
	h.pool(code).Reset()

	h.log.Info().Str("room", code).Str("host", req.HostName).Msg("room created")
	view := room.View()
	h.bus.BroadcastRoom(code, "room:created", map[string]any{"roomCode": code, "room": view})
	ack(bus.AckSuccess(map[string]any{"roomCode": code, "room": view}))
}

type joinRoomPayload struct {
	RoomCode string `json:"roomCode"`
	Type     string `json:"type"`
	Player   *struct {
		Name     string `json:"name"`
		Avatar   string `json:"avatar"`
		JingleID string `json:"jingleId"`
	} `json:"player"`
}

// joinRoom adds a player to a lobby, or re-binds the TV connection when the
// join carries type "tv".
func (h *Handler) joinRoom(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req joinRoomPayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if err := game.ValidateRoomCode(req.RoomCode); err != nil {
		ack(bus.AckError(err.Error()))
		return
	}
	code := req.RoomCode

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	if req.Type == bus.RoleTV {
		room, err := h.store.Update(ctx, code, func(r *game.Room) error {
			r.HostID = c.ConnID()
			return nil
		})
		if err != nil {
			h.ackFailure(ack, err, "Failed to join room")
			return
		}
		c.SetData(func(d *bus.ConnData) {
			d.RoomCode = code
			d.Role = bus.RoleTV
			d.PlayerID = ""
		})
		h.bus.JoinRoom(c.ConnID(), code)
		h.log.Info().Str("room", code).Msg("tv rebound")
		ack(bus.AckSuccess(map[string]any{"room": room.View()}))
		return
	}

	var name, avatar, jingle string
	if req.Player != nil {
		name, avatar, jingle = req.Player.Name, req.Player.Avatar, req.Player.JingleID
	}
	if err := game.ValidateJoin(code, name, avatar); err != nil {
		ack(bus.AckError(err.Error()))
		return
	}
	h.addPlayer(ctx, c, code, name, avatar, jingle, ack)
}

// addPlayer is the shared tail of join and lobby-phase rejoin. Caller holds
// the room's dispatch lock.
func (h *Handler) addPlayer(ctx context.Context, c Conn, code, name, avatar, jingle string, ack bus.Ack) {
	current, err := h.store.Get(ctx, code)
	if err != nil {
		h.ackFailure(ack, err, "Failed to join room")
		return
	}
	if current.Phase != game.PhaseLobby {
		ack(bus.AckError("Game already in progress"))
		return
	}

	// Re-seed the pool from the stored roster so a restarted process does
	// not hand out avatars already on screen.
	pool := h.pool(code)
	for _, p := range current.Players {
		pool.MarkUsed(p.Avatar)
	}
	assigned := avatar
	if assigned == "" || !pool.MarkUsed(assigned) {
		assigned = pool.Acquire()
	}

	player := game.NewPlayer(c.ConnID(), name, assigned)
	player.JingleID = jingle
	room, err := h.store.Update(ctx, code, func(r *game.Room) error {
		if r.Phase != game.PhaseLobby {
			return game.ErrGameInProgress
		}
		return r.AddPlayer(player)
	})
	if err != nil {
		pool.Release(assigned)
		h.ackFailure(ack, err, "Failed to join room")
		return
	}

	c.SetData(func(d *bus.ConnData) {
		d.RoomCode = code
		d.Role = bus.RolePlayer
		d.PlayerID = player.ID
	})
	h.bus.JoinRoom(c.ConnID(), code)

	h.log.Info().Str("room", code).Str("player", name).Msg("player joined")
	h.bus.BroadcastRoom(code, "room:player-joined", map[string]any{
		"player":      player,
		"playerCount": len(room.Players),
	})
	ack(bus.AckSuccess(map[string]any{"player": player, "room": room.View()}))
}

type rejoinPayload struct {
	RoomCode       string `json:"roomCode"`
	PlayerName     string `json:"playerName"`
	PlayerAvatar   string `json:"playerAvatar"`
	PlayerJingleID string `json:"playerJingleId"`
}

// errRejoinAsJoin signals that no prior player matched and the room is still
// in the lobby, so the rejoin falls through to a fresh join.
var errRejoinAsJoin = errors.New("rejoin without prior player")

// rejoinRoom re-binds a returning player, matched by case-insensitive name,
// to their new connection. Score, streak and any answers recorded this
// question survive the rebind.
func (h *Handler) rejoinRoom(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req rejoinPayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if err := game.ValidateRoomCode(req.RoomCode); err != nil {
		ack(bus.AckError(err.Error()))
		return
	}
	if err := game.ValidatePlayerName(req.PlayerName); err != nil {
		ack(bus.AckError(err.Error()))
		return
	}
	code := req.RoomCode

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	var oldID string
	var player *game.Player
	room, err := h.store.Update(ctx, code, func(r *game.Room) error {
		existing := r.FindPlayerByName(req.PlayerName)
		if existing == nil {
			if r.Phase != game.PhaseLobby {
				return game.ErrGameInProgress
			}
			return errRejoinAsJoin
		}
		oldID = existing.ID
		player = r.RebindPlayer(oldID, c.ConnID())
		if req.PlayerJingleID != "" {
			player.JingleID = req.PlayerJingleID
		}
		return nil
	})
	if errors.Is(err, errRejoinAsJoin) {
		h.addPlayer(ctx, c, code, req.PlayerName, req.PlayerAvatar, req.PlayerJingleID, ack)
		return
	}
	if err != nil {
		h.ackFailure(ack, err, "Failed to rejoin room")
		return
	}

	h.pool(code).MarkUsed(player.Avatar)
	c.SetData(func(d *bus.ConnData) {
		d.RoomCode = code
		d.Role = bus.RolePlayer
		d.PlayerID = player.ID
	})
	h.bus.JoinRoom(c.ConnID(), code)

	h.log.Info().Str("room", code).Str("player", player.Name).Msg("player rejoined")
	h.bus.BroadcastRoom(code, "room:player-rejoined", map[string]any{
		"oldPlayerId": oldID,
		"player":      player,
	})
	ack(bus.AckSuccess(map[string]any{"player": player, "room": room.View()}))
}

type leaveRoomPayload struct {
	RoomCode string `json:"roomCode"`
}

// leaveRoom removes the caller from their room. A leaving TV tears the room
// down; a leaving player is removed from the roster for good.
func (h *Handler) leaveRoom(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req leaveRoomPayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}
	data := c.Data()

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	if data.Role == bus.RoleTV {
		h.timers.Cancel(code)
		if err := h.store.Delete(ctx, code); err != nil {
			h.log.Error().Err(err).Str("room", code).Msg("room teardown failed")
		}
		h.bus.BroadcastRoom(code, "room:tv-disconnected", map[string]any{"roomCode": code})
		h.bus.LeaveRoom(c.ConnID(), code)
		h.dropPool(code)
		c.SetData(func(d *bus.ConnData) { *d = bus.ConnData{} })
		h.log.Info().Str("room", code).Msg("room closed by host")
		ack(bus.AckSuccess(nil))
		return
	}

	playerID := data.PlayerID
	var removed *game.Player
	room, err := h.store.Update(ctx, code, func(r *game.Room) error {
		removed = r.RemovePlayer(playerID)
		if removed == nil {
			return game.ErrPlayerNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, game.ErrPlayerNotFound) {
			// Room already gone or player never joined; leaving is a no-op.
			h.bus.LeaveRoom(c.ConnID(), code)
			c.SetData(func(d *bus.ConnData) { *d = bus.ConnData{} })
			ack(bus.AckSuccess(nil))
			return
		}
		h.ackFailure(ack, err, "Failed to leave room")
		return
	}

	h.pool(code).Release(removed.Avatar)
	h.bus.BroadcastRoom(code, "room:player-left", map[string]any{
		"playerId":    playerID,
		"playerCount": len(room.Players),
	})
	h.bus.LeaveRoom(c.ConnID(), code)
	c.SetData(func(d *bus.ConnData) { *d = bus.ConnData{} })
	h.log.Info().Str("room", code).Str("player", removed.Name).Msg("player left")

	// Their pending answer no longer blocks the question.
	h.resolveIfAllAnswered(ctx, room)
	ack(bus.AckSuccess(nil))
}

type kickPayload struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

// kickPlayer removes a player at the host's request. Allowed for the TV role
// or for the connection bound as hostSocketId.
func (h *Handler) kickPlayer(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req kickPayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" || req.PlayerID == "" {
		ack(bus.AckError("Room not found"))
		return
	}
	isTV := c.Data().Role == bus.RoleTV

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	var removed *game.Player
	room, err := h.store.Update(ctx, code, func(r *game.Room) error {
		if !isTV && c.ConnID() != r.HostID {
			return game.ErrNotHost
		}
		removed = r.RemovePlayer(req.PlayerID)
		if removed == nil {
			return game.ErrPlayerNotFound
		}
		return nil
	})
	if errors.Is(err, game.ErrNotHost) {
		ack(bus.AckError("Only host can kick players"))
		return
	}
	if err != nil {
		h.ackFailure(ack, err, "Failed to kick player")
		return
	}

	h.pool(code).Release(removed.Avatar)
	h.bus.EmitTo(req.PlayerID, "room:kicked", map[string]any{"roomCode": code})
	h.bus.LeaveRoom(req.PlayerID, code)
	h.bus.BroadcastRoom(code, "room:player-left", map[string]any{
		"playerId":    req.PlayerID,
		"playerCount": len(room.Players),
	})
	h.log.Info().Str("room", code).Str("player", removed.Name).Msg("player kicked")

	h.resolveIfAllAnswered(ctx, room)
	ack(bus.AckSuccess(nil))
}

type updateSettingsPayload struct {
	RoomCode string             `json:"roomCode"`
	Settings game.SettingsPatch `json:"settings"`
}

// updateSettings shallow-merges a host-supplied settings patch.
func (h *Handler) updateSettings(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req updateSettingsPayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	if c.Data().Role != bus.RoleTV {
		ack(bus.AckError("Only host can update settings"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	if code == "" {
		ack(bus.AckError("Room not found"))
		return
	}
	if err := game.ValidateSettingsPatch(req.Settings); err != nil {
		ack(bus.AckError(err.Error()))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	room, err := h.store.Update(ctx, code, func(r *game.Room) error {
		r.Settings.Apply(req.Settings)
		return nil
	})
	if err != nil {
		h.ackFailure(ack, err, "Failed to update settings")
		return
	}

	h.bus.BroadcastRoom(code, "room:settings-updated", map[string]any{"settings": room.Settings})
	ack(bus.AckSuccess(map[string]any{"settings": room.Settings}))
}

type updatePlayerPayload struct {
	RoomCode string  `json:"roomCode"`
	JingleID *string `json:"jingleId"`
	IsReady  *bool   `json:"isReady"`
}

// updatePlayer applies jingle and readiness changes for the caller and
// announces lobby readiness once everyone connected is ready.
func (h *Handler) updatePlayer(c Conn, payload json.RawMessage, ack bus.Ack) {
	var req updatePlayerPayload
	if err := decode(payload, &req); err != nil {
		ack(bus.AckError("Invalid payload"))
		return
	}
	code := h.roomCodeFor(c, req.RoomCode)
	playerID := c.Data().PlayerID
	if code == "" || playerID == "" {
		ack(bus.AckError("Room not found"))
		return
	}

	unlock := h.locks.lock(code)
	defer unlock()
	ctx := context.Background()

	var player *game.Player
	room, err := h.store.Update(ctx, code, func(r *game.Room) error {
		player = r.FindPlayer(playerID)
		if player == nil {
			return game.ErrPlayerNotFound
		}
		if req.JingleID != nil {
			player.JingleID = *req.JingleID
		}
		if req.IsReady != nil {
			player.IsReady = *req.IsReady
		}
		return nil
	})
	if err != nil {
		h.ackFailure(ack, err, "Failed to update player")
		return
	}

	h.bus.BroadcastRoom(code, "room:player-updated", map[string]any{"player": player})
	if room.AllConnectedReady() && len(room.Players) >= room.Settings.MinPlayers {
		h.bus.BroadcastRoom(code, "room:all-players-ready", nil)
	}
	ack(bus.AckSuccess(map[string]any{"player": player}))
}

package game

import "errors"

var (
	ErrRoomFull            = errors.New("room is full")
	ErrGameInProgress      = errors.New("game already in progress")
	ErrNameTaken           = errors.New("name already taken")
	ErrNotEnoughPlayers    = errors.New("not enough players to start")
	ErrNoQuestions         = errors.New("no questions loaded")
	ErrAlreadyAnswered     = errors.New("already answered")
	ErrNotAcceptingAnswers = errors.New("not accepting answers")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrNotHost             = errors.New("host privileges required")
)

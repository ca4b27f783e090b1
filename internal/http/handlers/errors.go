package handlers

import "errors"

var (
	errUnknownCreator = errors.New("no creator recorded for node")
	errMissingIDs     = errors.New("ids is required")
	errMissingQuery   = errors.New("q is required")
)

/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from internal error codes to the CustomError struct,
pairing each with the wire-level errortype token clients actually see.
*/
package errs

// errorMap stores the detailed CustomError struct corresponding to every application error code.
var errorMap = map[int]CustomError{
	ErrUsernameExists: {
		Code: ErrUsernameExists, Type: "username_exists",
		Message: "username is already registered",
	},
	ErrInvalidBlacklist: {
		Code: ErrInvalidBlacklist, Type: "invalid_blacklist",
		Message: "blacklist pair does not exist",
	},
	ErrInvalidUsernamePassword: {
		Code: ErrInvalidUsernamePassword, Type: "invalid_username_password",
		Message: "invalid username or password",
	},
	ErrInvalidMessageTarget: {
		Code: ErrInvalidMessageTarget, Type: "invalid_message_target",
		Message: "message target could not be resolved",
	},
	ErrInvalidRoom: {
		Code: ErrInvalidRoom, Type: "invalid_room",
		Message: "room name is invalid",
	},
	ErrRoomExists: {
		Code: ErrRoomExists, Type: "invalid_room",
		Message: "room already exists",
	},
	ErrServerError: {
		Code: ErrServerError, Type: "server_error",
		Message: "an unexpected server error occurred",
	},
	ErrRoomNotFound: {
		Code: ErrRoomNotFound, Type: "room_not_found",
		Message: "room does not exist",
	},
}

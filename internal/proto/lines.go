package proto

import (
	"fmt"
	"strings"
)

// Fixed reply lines.
const (
	LineWelcome              = "Welcome to telnet chat!"
	LineAlreadyAuthenticated = "You are already logged in."
	LineNotAuthenticated     = "You are not logged in."
	LineWrongPassword        = "Wrong password."
	LineRoomNotAvailable     = "You cannot join this room."
	LineNoCurrentRoom        = "Join a room first."
	LineRateLimited          = "Slow down."
	LineInternal             = "Something went wrong, please try again."
	LineAvailableRooms       = "Available rooms:"
)

// RoomListing is one row of the available-rooms listing.
type RoomListing struct {
	Name       string
	Visibility string
	Unread     int
}

// LoggedIn greets a freshly authenticated user.
func LoggedIn(nickname string) string {
	return fmt.Sprintf("Welcome, %s!", nickname)
}

// NicknameTaken reports a lost registration.
func NicknameTaken(nickname string) string {
	return fmt.Sprintf("Nickname %s is already taken.", nickname)
}

// InvalidNickname reports a nickname that cannot be registered.
func InvalidNickname(nickname string) string {
	return fmt.Sprintf("Invalid nickname %s: use letters, digits, '_' or '.' (max 32).", nickname)
}

// InvalidRoomName reports a room name that cannot be used.
func InvalidRoomName(name string) string {
	return fmt.Sprintf("Invalid room name %s: use letters, digits, '_' or '.' (max 64).", name)
}

// Malformed reports a recognized command with bad arguments.
func Malformed(usage string) string {
	return "Malformed command: " + usage
}

// Joined confirms a join to the joiner.
func Joined(room string) string {
	return fmt.Sprintf("You joined %s.", room)
}

// JoinedChannel notifies other occupants that nickname joined.
func JoinedChannel(nickname string) string {
	return nickname + " joined channel"
}

// LeftChannel notifies other occupants that nickname left.
func LeftChannel(nickname string) string {
	return nickname + " left channel"
}

// RoomCreated confirms room creation.
func RoomCreated(name string) string {
	return fmt.Sprintf("Room %s created.", name)
}

// RoomExists reports a room name collision.
func RoomExists(name string) string {
	return fmt.Sprintf("Room %s already exists.", name)
}

// ChatLine renders a chat message as delivered live or from backlog.
func ChatLine(sender, body string) string {
	return sender + "> " + body
}

// Rooms renders the available-rooms listing.
func Rooms(rooms []RoomListing) string {
	var b strings.Builder
	b.WriteString(LineAvailableRooms)
	for _, r := range rooms {
		fmt.Fprintf(&b, "\n  %s [%s] (%d unread)", r.Name, r.Visibility, r.Unread)
	}
	return b.String()
}

// Help lists the commands.
func Help() string {
	return strings.Join([]string{
		"Commands:",
		"  " + UsageLogin,
		"  " + UsageJoin,
		"  " + UsageList,
		"  " + UsageCreateRoom,
		"  " + UsageHelp,
		"Any other line is sent to your current room.",
	}, "\n")
}

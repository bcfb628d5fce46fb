package domain

import "strconv"

// RoomFeed is the broadcast room every post/comment/like event lands in.
const RoomFeed = "feed"

// UserRoom is the private inbox room for one user. A connection joins it
// automatically once identified.
func UserRoom(userID int64) string {
	return "user_" + strconv.FormatInt(userID, 10)
}

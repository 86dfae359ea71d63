package realtime

// Outbound events shared by every namespace.

type UserOnline struct {
	UserID string `json:"userId"`
}

func (UserOnline) EventName() string { return "userOnline" }

type UserOffline struct {
	UserID string `json:"userId"`
}

func (UserOffline) EventName() string { return "userOffline" }

type UnreadCount struct {
	Count int `json:"count"`
}

func (UnreadCount) EventName() string { return "unreadCount" }

type Error struct {
	Message string `json:"message"`
}

func (Error) EventName() string { return "error" }

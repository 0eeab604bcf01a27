package types

import (
	"time"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"

	MemberRoleCreator = "CREATOR"
	MemberRoleAdmin   = "ADMIN"
	MemberRoleMember  = "MEMBER"
)

type User struct {
	Id            string    `json:"id"`
	Email         string    `json:"email,omitempty"`
	Username      string    `json:"username"`
	DisplayName   *string   `json:"displayName"`
	AvatarUrl     *string   `json:"avatarUrl"`
	Role          string    `json:"role,omitempty"`
	IsOnline      bool      `json:"isOnline"`
	StatusMessage *string   `json:"statusMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// UserSummary is the sender/member projection of a user embedded in
// messages and membership listings.
type UserSummary struct {
	Id            string  `json:"id"`
	Username      string  `json:"username"`
	DisplayName   *string `json:"displayName"`
	AvatarUrl     *string `json:"avatarUrl"`
	StatusMessage *string `json:"statusMessage,omitempty"`
}

type RoomCount struct {
	Memberships int `json:"memberships"`
	Messages    int `json:"messages"`
}

type Room struct {
	Id          string     `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description *string    `json:"description"`
	IsPrivate   bool       `json:"isPrivate"`
	AvatarUrl   *string    `json:"avatarUrl"`
	CreatedById string     `json:"createdById"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	IsMember    bool       `json:"isMember"`
	IsCreator   bool       `json:"isCreator"`
	Count       *RoomCount `json:"_count,omitempty"`
}

type Member struct {
	Id       string      `json:"id"`
	UserId   string      `json:"userId"`
	RoomId   string      `json:"roomId"`
	Role     string      `json:"role"`
	JoinedAt time.Time   `json:"joinedAt"`
	User     UserSummary `json:"user"`
}

type Attachment struct {
	Type     string  `json:"type"`
	Url      string  `json:"url"`
	FileName *string `json:"fileName"`
	FileSize *int64  `json:"fileSize"`
}

type Message struct {
	Id         string      `json:"id"`
	Content    string      `json:"content"`
	RoomId     string      `json:"roomId"`
	SenderId   string      `json:"senderId"`
	Attachment *Attachment `json:"attachment"`
	Sender     UserSummary `json:"sender"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"nextCursor"`
	HasMore    bool      `json:"hasMore"`
}

type DashboardStats struct {
	TotalUsers    int `json:"totalUsers"`
	TotalRooms    int `json:"totalRooms"`
	TotalMessages int `json:"totalMessages"`
	OnlineUsers   int `json:"onlineUsers"`
	MessagesToday int `json:"messagesToday"`
}

type RoomRef struct {
	Id   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type AdminUser struct {
	Id          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName *string   `json:"displayName"`
	AvatarUrl   *string   `json:"avatarUrl"`
	IsOnline    bool      `json:"isOnline"`
	Rooms       []RoomRef `json:"rooms"`
}

type AdminRoom struct {
	Id            string     `json:"id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	IsPrivate     bool       `json:"isPrivate"`
	TotalMembers  int        `json:"totalMembers"`
	OnlineMembers int        `json:"onlineMembers"`
	MessagesCount int        `json:"messagesCount"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	CreatedById   string     `json:"createdById"`
	CreatedAt     time.Time  `json:"createdAt"`
}

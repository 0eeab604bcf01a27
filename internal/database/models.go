package database

import "time"

type User struct {
	Id            string
	Email         string
	Username      string
	PasswordHash  string
	DisplayName   *string
	AvatarUrl     *string
	Role          string
	IsOnline      bool
	StatusMessage *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type RoomRef struct {
	Id   string
	Name string
	Slug string
}

type UserWithRooms struct {
	User
	Rooms []RoomRef
}

type Room struct {
	Id            string
	Name          string
	Slug          string
	Description   *string
	IsPrivate     bool
	AvatarUrl     *string
	CreatedById   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	MembersCount  int
	MessagesCount int
	LastMessageAt *time.Time
	// ViewerRole is the membership role of the user the room was loaded
	// for, empty when that user is not a member.
	ViewerRole string
}

type Membership struct {
	Id       string
	UserId   string
	RoomId   string
	Role     string
	JoinedAt time.Time
}

type Member struct {
	Membership
	Username      string
	DisplayName   *string
	AvatarUrl     *string
	StatusMessage *string
}

type Attachment struct {
	Type     string  `json:"type"`
	Url      string  `json:"url"`
	FileName *string `json:"fileName"`
	FileSize *int64  `json:"fileSize"`
}

type Message struct {
	Id                string
	Content           string
	RoomId            string
	SenderId          string
	Attachment        *Attachment
	SenderUsername    string
	SenderDisplayName *string
	SenderAvatarUrl   *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type CreateUserParams struct {
	Email        string
	Username     string
	PasswordHash string
	DisplayName  *string
}

type UpdateUserParams struct {
	UserId        string
	Username      string
	PasswordHash  string
	DisplayName   *string
	StatusMessage *string
}

type CreateRoomParams struct {
	Name        string
	Slug        string
	Description *string
	IsPrivate   bool
	CreatedById string
}

type UpdateRoomParams struct {
	RoomId      string
	Name        *string
	Slug        *string
	Description *string
	IsPrivate   *bool
}

type CreateMessageParams struct {
	RoomId     string
	SenderId   string
	Content    string
	Attachment *Attachment
}

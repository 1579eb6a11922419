package chat

// ChatRow is one persisted conversation.
type ChatRow struct {
	ID            int64        `gorm:"primaryKey;autoIncrement"`
	Title         string       `gorm:"type:text;not null"`
	SystemMessage string       `gorm:"type:text;not null"`
	DateStarted   string       `gorm:"type:text;not null"`
	Requests      []RequestRow `gorm:"foreignKey:ChatID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ChatRow) TableName() string { return "chats" }

// RequestRow is one persisted turn. The prompt and response live in two
// message rows, not here.
type RequestRow struct {
	ID               int64        `gorm:"primaryKey;autoIncrement"`
	ChatID           int64        `gorm:"index;not null"`
	Model            string       `gorm:"type:text;not null"`
	Timestamp        string       `gorm:"type:text;not null"`
	Temperature      *float64     `gorm:"type:real"`
	TopP             *float64     `gorm:"type:real"`
	PresencePenalty  *float64     `gorm:"type:real"`
	FrequencyPenalty *float64     `gorm:"type:real"`
	Messages         []MessageRow `gorm:"foreignKey:RequestID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (RequestRow) TableName() string { return "requests" }

// MessageRow holds one side of a turn: role "user" carries the prompt, role
// "assistant" carries the response. Exactly two per request.
type MessageRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	RequestID int64  `gorm:"index;not null"`
	Role      string `gorm:"type:text;not null"`
	Content   string `gorm:"type:text;not null"`
}

func (MessageRow) TableName() string { return "messages" }
